package qna

// FAQ is a frequently asked question with its canned answer.
type FAQ struct {
	ID       int64  `json:"faq_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Views    int64  `json:"views"`
}

// Term is a glossary entry answered by its definition.
type Term struct {
	ID         int64  `json:"term_id"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Views      int64  `json:"views"`
}
