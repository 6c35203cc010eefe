// Package handler implements the line-oriented lending protocol: a
// per-connection command state machine in front of the shared inventory
// service, and the TCP server that accepts connections.
package handler

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/adi0301/item-lending/internal/core/domain"
	"github.com/adi0301/item-lending/internal/core/service"
	"github.com/adi0301/item-lending/internal/metrics"
)

// maxLineBytes bounds a single command line. A longer line gets one
// ERR PROTOCOL reply and then ends the connection as a transport fault:
// the scanner cannot resynchronize on line boundaries past its buffer.
const maxLineBytes = 4096

// session is the per-connection authentication state. It is owned by a
// single goroutine and never shared.
type session struct {
	id       string
	remote   string
	username string
}

func (s *session) authenticated() bool {
	return s.username != ""
}

// Handler translates protocol lines into inventory calls. One Handler is
// shared by all connections; all per-connection state lives in the session.
type Handler struct {
	inv      *service.InventoryService
	activity *service.ActivityRecorder
	logger   pslog.Logger
}

func NewHandler(inv *service.InventoryService, activity *service.ActivityRecorder, logger pslog.Logger) *Handler {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Handler{inv: inv, activity: activity, logger: logger}
}

// Handle runs the read/dispatch/reply loop for one connection until QUIT,
// disconnect, or a transport fault. Domain errors never end the session;
// they become a single reply line.
func (h *Handler) Handle(conn net.Conn) {
	defer conn.Close()

	sess := &session{
		id:     uuid.NewString(),
		remote: conn.RemoteAddr().String(),
	}
	logger := h.logger.With("conn", sess.id, "remote", sess.remote)
	logger.Debug("connection accepted")

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		reply, closing := h.dispatch(sess, line)

		countCommand(line, reply)

		if _, err := fmt.Fprintf(conn, "%s\n", reply); err != nil {
			logger.Warn("write failed", "error", err)
			break
		}
		if closing {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// The oversized request still gets its single reply line before
			// the connection is dropped as a transport fault.
			fmt.Fprintf(conn, "ERR PROTOCOL command_invalid\n")
			logger.Warn("oversized command line", "limit", maxLineBytes)
		} else {
			logger.Debug("read ended", "error", err)
		}
	}

	if sess.authenticated() {
		h.emit(sess, domain.EventDisconnect, 0)
	}
	logger.Debug("connection closed", "user", sess.username)
}

// dispatch handles one command line and returns the reply plus whether the
// connection should close. It is a pure state machine over the session,
// which keeps it directly testable without a socket.
func (h *Handler) dispatch(sess *session, line string) (reply string, closing bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return "ERR PROTOCOL command_invalid", false
	}

	verb := tokens[0]

	if verb == "HELLO" {
		if sess.authenticated() {
			// The username is fixed for the session; no re-binding.
			return "ERR STATE already_authenticated", false
		}
		if len(tokens) < 2 || tokens[1] == "" {
			return "ERR PROTOCOL missing_username", false
		}
		sess.username = tokens[1]
		h.emit(sess, domain.EventLogin, 0)
		return "OK HELLO", false
	}

	if !sess.authenticated() {
		return "ERR STATE not_authenticated", false
	}

	switch verb {
	case "LIST":
		lines := h.inv.List()
		var b strings.Builder
		fmt.Fprintf(&b, "OK LIST %d", len(lines))
		for _, l := range lines {
			b.WriteByte('\n')
			b.WriteString(l)
		}
		return b.String(), false

	case "BORROW":
		id, ok := parseItemID(tokens)
		if !ok {
			return "ERR PROTOCOL invalid_id", false
		}
		if err := h.inv.Borrow(id, sess.username); err != nil {
			return errorReply(err), false
		}
		h.emit(sess, domain.EventBorrow, id)
		metrics.ItemsBorrowed.Inc()
		return fmt.Sprintf("OK BORROWED %d", id), false

	case "RETURN":
		id, ok := parseItemID(tokens)
		if !ok {
			return "ERR PROTOCOL invalid_id", false
		}
		if err := h.inv.Return(id, sess.username); err != nil {
			return errorReply(err), false
		}
		h.emit(sess, domain.EventReturn, id)
		metrics.ItemsBorrowed.Dec()
		return fmt.Sprintf("OK RETURNED %d", id), false

	case "WAIT":
		id, ok := parseItemID(tokens)
		if !ok {
			return "ERR PROTOCOL invalid_id", false
		}
		metrics.WaitersBlocked.Inc()
		err := h.inv.WaitUntilAvailable(id, sess.username)
		metrics.WaitersBlocked.Dec()
		if err != nil {
			return errorReply(err), false
		}
		h.emit(sess, domain.EventWait, id)
		return fmt.Sprintf("OK AVAILABLE %d", id), false

	case "QUIT":
		return "OK BYE", true

	default:
		return "ERR PROTOCOL invalid_command", false
	}
}

// errorReply maps a store error kind to its protocol line. It is a pure
// function of the error kind so the taxonomy stays in one place.
func errorReply(err error) string {
	var conflict *domain.AlreadyBorrowedError
	switch {
	case errors.As(err, &conflict):
		return "ERR UNAVAILABLE borrowed_by=" + conflict.Owner
	case errors.Is(err, domain.ErrNotFound):
		return "ERR NOT_FOUND item"
	case errors.Is(err, domain.ErrInvalidUser):
		return "ERR PROTOCOL missing_username"
	case errors.Is(err, domain.ErrNotBorrowed), errors.Is(err, domain.ErrNotOwner):
		return "ERR PERMISSION not_owner"
	case errors.Is(err, domain.ErrSelfDeadlock):
		return "ERR DEADLOCK item"
	default:
		return "ERR PROTOCOL internal_error"
	}
}

// parseItemID extracts the numeric argument of BORROW/RETURN/WAIT. Extra
// trailing tokens are ignored.
func parseItemID(tokens []string) (int, bool) {
	if len(tokens) < 2 {
		return 0, false
	}
	id, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *Handler) emit(sess *session, kind domain.EventKind, itemID int) {
	if h.activity == nil {
		return
	}
	h.activity.Emit(domain.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		ItemID:     itemID,
		Username:   sess.username,
		RemoteAddr: sess.remote,
		At:         time.Now(),
	})
}

func countCommand(line, reply string) {
	verb := "empty"
	if fields := strings.Fields(line); len(fields) > 0 {
		verb = fields[0]
	}
	// Client-controlled input must not become unbounded label cardinality.
	switch verb {
	case "HELLO", "LIST", "BORROW", "RETURN", "WAIT", "QUIT", "empty":
	default:
		verb = "unknown"
	}
	outcome := "ok"
	if strings.HasPrefix(reply, "ERR") {
		outcome = "err"
	}
	metrics.CommandsTotal.WithLabelValues(verb, outcome).Inc()
}
