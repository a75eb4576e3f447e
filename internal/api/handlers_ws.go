package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/dayforge/dayforge/internal/relay"
)

// handleWebSocket upgrades /ws and pumps inbound voice_command / identify
// messages to the Orchestrator, registering the connection with the
// ClientHub for outbound broadcast until the client disconnects. One read
// goroutine per connection; the hub owns the write side exclusively.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var inbound relay.InboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			s.hub.Broadcast(relay.NewEnvelope("agent_activity", relay.AgentActivity{
				Agent: "relay", Message: "malformed inbound message", Type: "warning",
			}))
			continue
		}

		switch inbound.Type {
		case "identify":
			// No per-connection session state to establish beyond hub
			// membership; acknowledged implicitly by continuing to receive
			// broadcasts.
		case "voice_command":
			cmd := relay.VoiceCommand{
				CommandType: inbound.Payload.CommandType,
				TaskID:      inbound.Payload.TaskID,
				Minutes:     inbound.Payload.Minutes,
			}
			if err := s.orchestrator.HandleVoiceCommand(ctx, cmd); err != nil {
				s.orchestrator.EmitActivity(ctx, "relay", "voice command failed: "+err.Error(), "warning")
			}
		default:
			s.hub.Broadcast(relay.NewEnvelope("agent_activity", relay.AgentActivity{
				Agent: "relay", Message: "unknown inbound message type: " + inbound.Type, Type: "warning",
			}))
		}
	}
}
