package botservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// HandoffToken is the reply text the bot service uses to ask for a human.
const HandoffToken = "human_handoff"

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("botservice: malformed reply")

// ParseError describes why a body could not be interpreted.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("botservice: malformed reply: %s: %v", e.Reason, e.Err)
	}
	return "botservice: malformed reply: " + e.Reason
}

func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

func (e *ParseError) Unwrap() error { return e.Err }

// ReplyKind tags an interpreted reply.
type ReplyKind int

const (
	KindEmpty ReplyKind = iota
	KindHandoff
	KindReply
)

func (k ReplyKind) String() string {
	switch k {
	case KindHandoff:
		return "handoff"
	case KindReply:
		return "reply"
	default:
		return "empty"
	}
}

// Reply is the interpreted first reply candidate.
type Reply struct {
	Kind ReplyKind
	Text string
}

// Interpret reads the bot service body. Only the first array element is
// consulted; a usable reply needs a non-empty string "text" field.
func Interpret(body []byte) (Reply, error) {
	var candidates []json.RawMessage
	if err := json.Unmarshal(body, &candidates); err != nil {
		return Reply{}, &ParseError{Reason: "body is not a JSON array", Err: err}
	}
	if len(candidates) == 0 {
		return Reply{}, &ParseError{Reason: "empty reply array"}
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(candidates[0], &first); err != nil || first == nil {
		// Scalars or null in position zero carry no text.
		return Reply{Kind: KindEmpty}, nil
	}
	raw, ok := first["text"]
	if !ok {
		return Reply{Kind: KindEmpty}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil || strings.TrimSpace(text) == "" {
		return Reply{Kind: KindEmpty}, nil
	}
	if text == HandoffToken {
		return Reply{Kind: KindHandoff, Text: text}, nil
	}
	return Reply{Kind: KindReply, Text: text}, nil
}
