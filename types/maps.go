package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ReactionMap maps a participant id to the single emoji that participant reacted with.
// It implements driver.Valuer and sql.Scanner so gorm can store it in a JSON column.
type ReactionMap map[string]string

func (m ReactionMap) Copy() ReactionMap {
	res := make(ReactionMap, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

// Counts returns the number of reactions per emoji.
func (m ReactionMap) Counts() map[string]int {
	res := make(map[string]int)
	for _, emoji := range m {
		res[emoji]++
	}
	return res
}

// Value return json value, implement driver.Valuer interface
func (m ReactionMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	ba, err := json.Marshal(map[string]string(m))
	return string(ba), err
}

// Scan scan value into ReactionMap, implements sql.Scanner interface
func (m *ReactionMap) Scan(val interface{}) error {
	ba, err := scanBytes(val)
	if err != nil {
		return err
	}
	t := map[string]string{}
	err = json.Unmarshal(ba, &t)
	*m = ReactionMap(t)
	return err
}

func (ReactionMap) GormDataType() string {
	return "reactionmap"
}

func (ReactionMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDBDataType(db)
}

// ReadSet maps a participant id to the time that participant acknowledged an important message.
type ReadSet map[string]time.Time

func (s ReadSet) Copy() ReadSet {
	res := make(ReadSet, len(s))
	for k, v := range s {
		res[k] = v
	}
	return res
}

func (s ReadSet) Has(participantId string) bool {
	_, ok := s[participantId]
	return ok
}

func (s ReadSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	ba, err := json.Marshal(map[string]time.Time(s))
	return string(ba), err
}

func (s *ReadSet) Scan(val interface{}) error {
	ba, err := scanBytes(val)
	if err != nil {
		return err
	}
	t := map[string]time.Time{}
	err = json.Unmarshal(ba, &t)
	*s = ReadSet(t)
	return err
}

func (ReadSet) GormDataType() string {
	return "readset"
}

func (ReadSet) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDBDataType(db)
}

func scanBytes(val interface{}) ([]byte, error) {
	switch v := val.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return []byte("{}"), nil
	}
	return nil, errors.New(fmt.Sprint("Failed to unmarshal JSON value:", val))
}

func jsonDBDataType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
