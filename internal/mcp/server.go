package mcpserver

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"calassist/internal/dispatch"
)

// Server exposes the scheduling gateway as MCP tools. The calling agent is
// the one talking to the user, so mutating tools require an explicit
// confirmed flag and otherwise only describe what they would do.
type Server struct {
	gw     dispatch.Gateway
	loc    *time.Location
	format dispatch.Formatter
	logger *zap.Logger
}

// New creates a Server. now may be nil to use the wall clock.
func New(gw dispatch.Gateway, loc *time.Location, now func() time.Time, logger *zap.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		gw:     gw,
		loc:    loc,
		format: dispatch.Formatter{Location: loc, Now: now},
		logger: logger,
	}
}

// Build creates the MCP server with every tool registered.
func (s *Server) Build(version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "calassist",
			Version: version,
		},
		nil,
	)

	// Reads
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_event_types",
		Description: "List the event types (meeting templates) on the Cal.com account",
	}, s.listEventTypes)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "check_availability",
		Description: "List open slots for an event type between two dates",
	}, s.checkAvailability)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_bookings",
		Description: "List bookings, optionally filtered by attendee email and date range",
	}, s.listBookings)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_booking",
		Description: "Get one booking by id",
	}, s.getBooking)

	// Mutations
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name: "create_booking",
		Description: `Book a meeting. Without confirmed=true nothing is booked and the summary
to show the user is returned; call again with confirmed=true once they agree.`,
	}, s.createBooking)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "cancel_booking",
		Description: "Cancel a booking by id. Requires confirmed=true; otherwise returns the summary to confirm.",
	}, s.cancelBooking)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "reschedule_booking",
		Description: "Move a booking to a new start time. Requires confirmed=true; otherwise returns the summary to confirm.",
	}, s.rescheduleBooking)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "create_event_type",
		Description: "Create an event type. Requires confirmed=true; otherwise returns the summary to confirm.",
	}, s.createEventType)

	return server
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context, version string) error {
	s.logger.Info("mcp server starting", zap.String("transport", "stdio"))
	return s.Build(version).Run(ctx, &mcpsdk.StdioTransport{})
}
