package models

// Holiday marks a date on which the studio is closed.
type Holiday struct {
	Date        Date   `db:"date" json:"date"`
	Description string `db:"description" json:"description"`
}
