// Package command parses the deployment query command into a structured
// request.
package command

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
)

// ErrWrongArguments is returned for any token combination outside the four
// documented command forms. Its text is surfaced verbatim to the user.
var ErrWrongArguments = errors.New("wrong arguments")

// Usage documents the four accepted command forms.
const Usage = "<environment> | <environment> ext | <environment> <project> | <environment> <project> ext"

// Request is a parsed deployment query.
type Request struct {
	Environment string `json:"environment"`
	Project     string `json:"project,omitempty"`
	Extended    bool   `json:"extended,omitempty"`
	User        string `json:"user,omitempty"`
	Target      string `json:"target,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Parse splits the text following the trigger word and applies the
// positional grammar:
//
//	<env>                environment only
//	<env> ext            environment, extended
//	<env> <project>      environment and project
//	<env> <project> ext  environment, project, extended
//
// user and target identify the requester and the delivery channel; both are
// carried through unparsed. The parsed request is logged before use.
func Parse(text, user, target string) (Request, error) {
	req := Request{
		User:    user,
		Target:  target,
		Message: text,
	}

	tokens := strings.Fields(text)
	switch {
	case len(tokens) == 1:
		req.Environment = tokens[0]
	case len(tokens) == 2 && tokens[1] == "ext":
		req.Environment = tokens[0]
		req.Extended = true
	case len(tokens) == 2:
		req.Environment = tokens[0]
		req.Project = tokens[1]
	case len(tokens) == 3 && tokens[2] == "ext":
		req.Environment = tokens[0]
		req.Project = tokens[1]
		req.Extended = true
	default:
		logRequest(req)
		return Request{}, ErrWrongArguments
	}

	logRequest(req)
	return req, nil
}

func logRequest(req Request) {
	encoded, err := json.Marshal(req)
	if err != nil {
		log.Printf("command: request environment=%s project=%s extended=%v", req.Environment, req.Project, req.Extended)
		return
	}
	log.Printf("command: %s", encoded)
}
