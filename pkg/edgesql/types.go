package edgesql

import (
	"fmt"
)

// Database is one entry of the databases listing.
type Database struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ClientID  string `json:"client_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// StatementResult holds the columns and rows one statement returned.
// Statements without a result set have neither.
type StatementResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// StatementError is a statement the service rejected. Index is 0-based
// within the submitted group.
type StatementError struct {
	Index   int
	Message string
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d: %s", e.Index, e.Message)
}

type listResponse struct {
	Count   int        `json:"count"`
	Results []Database `json:"results"`
}

type getResponse struct {
	Data *Database `json:"data"`
}

type createRequest struct {
	Name string `json:"name"`
}

type queryRequest struct {
	Statements []string `json:"statements"`
}

type queryResponse struct {
	State string       `json:"state"`
	Data  []queryEntry `json:"data"`
}

type queryEntry struct {
	Results *StatementResult `json:"results"`
	Error   string           `json:"error"`
}

// errorResponse covers the error shapes the API answers with.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e errorResponse) message() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Detail != "":
		return e.Detail
	case len(e.Errors) > 0 && e.Errors[0].Detail != "":
		return e.Errors[0].Detail
	case len(e.Errors) > 0:
		return e.Errors[0].Title
	}
	return ""
}
