package models

// TeamList is a named pool of teams a competition picks from, e.g. one league season.
type TeamList struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Team struct {
	ID         int    `json:"id" db:"id"`
	TeamListID int    `json:"team_list_id" db:"team_list_id"`
	Name       string `json:"name" db:"name"`
	ShortName  string `json:"short_name" db:"short_name"`
}
