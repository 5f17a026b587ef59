// Package legacy reads the previous admin panel's SQL database so its
// inventory can be carried over into the document store. Read-only:
// nothing here ever writes back.
package legacy

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/google/uuid"

	"credpool/entity"
	"credpool/internal/config"
)

type SqlClient struct {
	db *sql.DB
}

func NewSqlClient(conf *config.Config) (*SqlClient, error) {
	if !conf.Legacy.Enabled {
		return nil, fmt.Errorf("legacy client is disabled in configuration")
	}
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conf.Legacy.User, conf.Legacy.Password, conf.Legacy.Host, conf.Legacy.Port, conf.Legacy.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times with a 30-second interval; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(30 * time.Second)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	return &SqlClient{db: db}, nil
}

func (s *SqlClient) Close() {
	_ = s.db.Close()
}

// Platforms lists the platform names registered in the old schema.
func (s *SqlClient) Platforms() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM platforms ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("select platforms: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Credentials reads one platform's credential rows into the current
// data model. Fresh ids are assigned; the old serial ids are not kept.
func (s *SqlClient) Credentials(platform string) ([]*entity.Credential, error) {
	rows, err := s.db.Query(`
		SELECT c.email, c.password, c.status,
		       COALESCE(c.claimed_by, ''), COALESCE(c.claimed_by_name, ''), COALESCE(c.claimed_by_username, ''),
		       c.claimed_at, c.created_at
		FROM credentials c
		JOIN platforms p ON c.platform_id = p.id
		WHERE p.name = ?
		ORDER BY c.created_at`, platform)
	if err != nil {
		return nil, fmt.Errorf("select credentials: %w", err)
	}
	defer rows.Close()

	var creds []*entity.Credential
	for rows.Next() {
		cred := &entity.Credential{Id: uuid.NewString(), Platform: platform}
		var claimedAt, createdAt sql.NullTime
		err = rows.Scan(&cred.Email, &cred.Password, &cred.Status,
			&cred.ClaimedBy, &cred.ClaimedByName, &cred.ClaimedByUsername,
			&claimedAt, &createdAt)
		if err != nil {
			return nil, err
		}
		if claimedAt.Valid {
			cred.ClaimedAt = claimedAt.Time
		}
		if createdAt.Valid {
			cred.CreatedAt = createdAt.Time
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Keys reads one platform's keys with their redemption lists.
func (s *SqlClient) Keys(platform string) ([]*entity.RedemptionKey, error) {
	rows, err := s.db.Query(`
		SELECT k.id, k.key_code, k.uses, k.remaining_uses,
		       COALESCE(k.account_text, ''), k.status,
		       COALESCE(k.giveaway_winner, ''), k.created_at, k.redeemed_at
		FROM keys k
		JOIN platforms p ON k.platform_id = p.id
		WHERE p.name = ?
		ORDER BY k.created_at`, platform)
	if err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	defer rows.Close()

	var keys []*entity.RedemptionKey
	ids := make(map[string]int64)
	for rows.Next() {
		key := &entity.RedemptionKey{
			Id:        uuid.NewString(),
			Platform:  platform,
			UsersInfo: []entity.Redemption{},
		}
		var legacyId int64
		var createdAt, redeemedAt sql.NullTime
		err = rows.Scan(&legacyId, &key.KeyCode, &key.Uses, &key.RemainingUses,
			&key.Description, &key.Status, &key.GiveawayWinner, &createdAt, &redeemedAt)
		if err != nil {
			return nil, err
		}
		if createdAt.Valid {
			key.CreatedAt = createdAt.Time
		}
		if redeemedAt.Valid {
			key.RedeemedAt = redeemedAt.Time
		}
		ids[key.Id] = legacyId
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, key := range keys {
		key.UsersInfo, err = s.redemptions(ids[key.Id])
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (s *SqlClient) redemptions(keyId int64) ([]entity.Redemption, error) {
	rows, err := s.db.Query(`
		SELECT user_id, COALESCE(username, ''), redeemed_at
		FROM key_redemptions
		WHERE key_id = ?
		ORDER BY redeemed_at`, keyId)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	users := []entity.Redemption{}
	for rows.Next() {
		var r entity.Redemption
		var at sql.NullTime
		if err = rows.Scan(&r.UserId, &r.Username, &at); err != nil {
			return nil, err
		}
		if at.Valid {
			r.JoinedAt = at.Time
		}
		users = append(users, r)
	}
	return users, rows.Err()
}
