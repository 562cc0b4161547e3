package maintenance

import (
	"errors"
	"strconv"
	"strings"
)

// Point-to-point message markers.
const (
	frameRequest = "REQUEST"
	frameReply   = "REPLY"
	frameOK      = "OK"
	frameError   = "ERROR"
)

// CommandMaintenanceMode is the only request command this agent serves.
const CommandMaintenanceMode = "MAINTENANCE_MODE"

// Maintenance modes.
const (
	ModeEnable  = "enable"
	ModeDisable = "disable"
)

// ErrUnaddressable marks a request so malformed that no reply can be
// correlated back to the caller. Such requests are logged and dropped.
var ErrUnaddressable = errors.New("maintenance: request lacks type or correlation id")

// Request is a decoded point-to-point command:
//
//	REQUEST <correlationId> MAINTENANCE_MODE <enable|disable> <asset>... [<ttlSeconds>]
type Request struct {
	Type          string
	CorrelationID string
	Command       string
	Args          []string
}

// ParseFrames decodes the frame list of an inbound request. It only fails
// when the message cannot be replied to at all; every other defect is
// reported through an ERROR reply by the controller.
func ParseFrames(frames []string) (Request, error) {
	if len(frames) < 2 {
		return Request{}, ErrUnaddressable
	}
	req := Request{Type: frames[0], CorrelationID: frames[1]}
	if req.Type == "" || req.CorrelationID == "" {
		return Request{}, ErrUnaddressable
	}
	if len(frames) > 2 {
		req.Command = frames[2]
	}
	if len(frames) > 3 {
		req.Args = frames[3:]
	}
	return req, nil
}

// Reply is the synchronous answer to a Request. The correlation id is echoed
// back verbatim as the first frame, followed by the REPLY marker.
type Reply struct {
	CorrelationID string
	OK            bool
	Reason        string
}

// Frames encodes the reply for the wire.
func (r Reply) Frames() []string {
	frames := []string{r.CorrelationID, frameReply}
	if r.OK {
		return append(frames, frameOK)
	}
	return append(frames, frameError, r.Reason)
}

// isAssetToken applies the wire grammar's disambiguation rule: a token
// containing a hyphen names an asset. This conflates the asset-naming
// convention with parsing; the grammar is kept as-is so existing callers
// keep working.
func isAssetToken(token string) bool {
	return strings.Contains(token, "-")
}

// trailingTTL extracts the override TTL when the last token is purely
// numeric. ok is false when the command carries no TTL.
func trailingTTL(args []string) (uint64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	last := args[len(args)-1]
	if isAssetToken(last) {
		return 0, false
	}
	ttl, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return 0, false
	}
	return ttl, true
}
