// Package store persists the app state (profiles, the current-user pointer,
// the VIP flag, and chat conversations) in a local bbolt file. It is the
// single-user local storage of the app; there is no multi-user state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	profilesBucket      = []byte("profiles")
	conversationsBucket = []byte("conversations")
	appBucket           = []byte("app")

	currentUserKey = []byte("current-user")
	vipKey         = []byte("vip")
)

// ErrNotFound is returned when a profile or conversation id does not exist.
var ErrNotFound = errors.New("not found")

// BirthInfo holds the birth data captured during onboarding. Only the
// resolved city name and coordinates are kept, never a full gazetteer record.
type BirthInfo struct {
	BirthDate     string  `json:"birthDate"` // ISO date
	BirthTime     string  `json:"birthTime"` // HH:mm
	BirthLocation string  `json:"birthLocation"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// Profile is one user profile.
type Profile struct {
	ID            string    `json:"id"`
	Nickname      string    `json:"nickname"`
	Gender        string    `json:"gender,omitempty"`
	BirthInfo     BirthInfo `json:"birthInfo"`
	IsMain        bool      `json:"isMain"`
	SunSign       string    `json:"sunSign"`
	MoonSign      string    `json:"moonSign"`
	AscendantSign string    `json:"ascendantSign"`
	Avatar        string    `json:"avatar,omitempty"`
}

// ChatMessage is one message of a conversation.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // user or model
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation groups the chat history of one profile.
type Conversation struct {
	ID          string        `json:"id"`
	ProfileID   string        `json:"profileId"`
	Title       string        `json:"title"`
	Messages    []ChatMessage `json:"messages"`
	LastUpdated int64         `json:"lastUpdated"`
}

// Store is a bbolt-backed app state store. Safe for concurrent use.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens (or creates) the store file.
func Open(path string) (*Store, error) {
	logger := slog.With("component", "store")

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 20 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{profilesBucket, conversationsBucket, appBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store buckets: %w", err)
	}

	logger.Info("store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddProfile stores a new profile, assigning an id if missing. The first
// profile added becomes the current user.
func (s *Store) AddProfile(p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("serializing profile: %w", err)
		}
		if err := tx.Bucket(profilesBucket).Put([]byte(p.ID), data); err != nil {
			return err
		}
		app := tx.Bucket(appBucket)
		if app.Get(currentUserKey) == nil {
			return app.Put(currentUserKey, []byte(p.ID))
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("profile added", "id", p.ID, "nickname", p.Nickname)
	return p, nil
}

// Profile returns a profile by id.
func (s *Store) Profile(id string) (Profile, error) {
	var p Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(profilesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	return p, err
}

// Profiles returns all stored profiles.
func (s *Store) Profiles() ([]Profile, error) {
	var profiles []Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(profilesBucket).ForEach(func(_, data []byte) error {
			var p Profile
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("parsing stored profile: %w", err)
			}
			profiles = append(profiles, p)
			return nil
		})
	})
	return profiles, err
}

// UpdateProfile replaces an existing profile.
func (s *Store) UpdateProfile(p Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(profilesBucket)
		if bucket.Get([]byte(p.ID)) == nil {
			return fmt.Errorf("profile %s: %w", p.ID, ErrNotFound)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("serializing profile: %w", err)
		}
		return bucket.Put([]byte(p.ID), data)
	})
}

// DeleteProfile removes a profile and its conversations. If it was the
// current user, another profile is promoted, or the pointer is cleared when
// none remain.
func (s *Store) DeleteProfile(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		profiles := tx.Bucket(profilesBucket)
		if profiles.Get([]byte(id)) == nil {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		if err := profiles.Delete([]byte(id)); err != nil {
			return err
		}

		// Drop the profile's conversations.
		conversations := tx.Bucket(conversationsBucket)
		var stale [][]byte
		if err := conversations.ForEach(func(k, data []byte) error {
			var c Conversation
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("parsing stored conversation: %w", err)
			}
			if c.ProfileID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := conversations.Delete(k); err != nil {
				return err
			}
		}

		app := tx.Bucket(appBucket)
		if string(app.Get(currentUserKey)) == id {
			next, _ := profiles.Cursor().First()
			if next == nil {
				return app.Delete(currentUserKey)
			}
			return app.Put(currentUserKey, append([]byte(nil), next...))
		}
		return nil
	})
}

// SetCurrentUser points the current-user marker at an existing profile.
func (s *Store) SetCurrentUser(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(profilesBucket).Get([]byte(id)) == nil {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return tx.Bucket(appBucket).Put(currentUserKey, []byte(id))
	})
}

// CurrentUser returns the current profile; ok is false when none is set.
func (s *Store) CurrentUser() (Profile, bool, error) {
	var (
		p  Profile
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(appBucket).Get(currentUserKey)
		if id == nil {
			return nil
		}
		data := tx.Bucket(profilesBucket).Get(id)
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &p)
	})
	return p, ok, err
}

// SetVIP sets the VIP flag.
func (s *Store) SetVIP(vip bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(appBucket).Put(vipKey, []byte(fmt.Sprintf("%t", vip)))
	})
}

// VIP reports the VIP flag.
func (s *Store) VIP() (bool, error) {
	var vip bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		vip = string(tx.Bucket(appBucket).Get(vipKey)) == "true"
		return nil
	})
	return vip, err
}

// SaveConversation inserts or replaces a conversation, assigning an id and
// refreshing the last-updated stamp.
func (s *Store) SaveConversation(c Conversation) (Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.LastUpdated = time.Now().UnixMilli()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("serializing conversation: %w", err)
		}
		return tx.Bucket(conversationsBucket).Put([]byte(c.ID), data)
	})
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// Conversations returns a profile's conversations, most recent first.
func (s *Store) Conversations(profileID string) ([]Conversation, error) {
	var conversations []Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, data []byte) error {
			var c Conversation
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("parsing stored conversation: %w", err)
			}
			if c.ProfileID == profileID {
				conversations = append(conversations, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastUpdated > conversations[j].LastUpdated
	})
	return conversations, nil
}

// DeleteConversation removes a conversation by id.
func (s *Store) DeleteConversation(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// Reset wipes all stored data.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{profilesBucket, conversationsBucket, appBucket} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}
