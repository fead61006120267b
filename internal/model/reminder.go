package model

import "time"

// Reminder is a theme/message pair due at a point in time.
type Reminder struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Theme   string `gorm:"column:theme;type:text;not null" json:"theme"`
	Message string `gorm:"column:message;type:text;not null" json:"message"`
	// DueAt is epoch milliseconds.
	DueAt int64 `gorm:"column:due_at;not null;index" json:"dueAt"`
}

// TableName pins the table name regardless of naming strategy.
func (Reminder) TableName() string {
	return "reminders"
}

// Due returns DueAt as a time in loc.
func (r Reminder) Due(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(r.DueAt).In(loc)
}

// SchemaMeta records the schema version of the reminders table.
type SchemaMeta struct {
	ID      uint `gorm:"primaryKey"`
	Version int  `gorm:"not null"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
