package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/splax/servertracker/internal/domain"
)

const unexpectedErrorMessage = "Unexpected server error."

// EnvironmentService is the subset of the environment service the hub drives.
type EnvironmentService interface {
	AddNewEnvironment(ctx context.Context, env *domain.Environment) error
	DeleteEnvironment(ctx context.Context, id int64) error
	GetAllEnvironments(ctx context.Context) ([]domain.Environment, error)
}

// ServerService is the subset of the server service the hub drives.
type ServerService interface {
	AddNewServer(ctx context.Context, server *domain.Server) error
	UpdateServer(ctx context.Context, server *domain.Server) error
	DeleteServer(ctx context.Context, id int64) error
	GetAllServers(ctx context.Context) ([]domain.Server, error)
	GetServersForEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error)
}

type commandHandler func(ctx context.Context, client Subscriber, args []json.RawMessage) error

// argumentError marks a request the hub could not decode.
type argumentError struct{ err error }

func (e argumentError) Error() string { return e.err.Error() }
func (e argumentError) Unwrap() error { return e.err }

func (h *Hub) commandTable() map[Command]commandHandler {
	return map[Command]commandHandler{
		CommandCreateNewEnvironment:     h.createNewEnvironment,
		CommandRemoveEnvironment:        h.removeEnvironment,
		CommandGetAllEnvironments:       h.getAllEnvironments,
		CommandCreateNewServer:          h.createNewServer,
		CommandRemoveServer:             h.removeServer,
		CommandUpdateServer:             h.updateServer,
		CommandGetAllServers:            h.getAllServers,
		CommandGetServersForEnvironment: h.getServersForEnvironment,
	}
}

func (h *Hub) handleFrame(ctx context.Context, client Subscriber, frame []byte) {
	var inv Invocation
	if err := json.Unmarshal(frame, &inv); err != nil {
		h.log.Debug("malformed frame", "connection_id", client.ID(), "error", err)
		h.sendError(client, "Malformed message.")
		return
	}
	cmd, ok := ParseCommand(inv.Command)
	if !ok {
		h.log.Debug("unknown command", "connection_id", client.ID(), "command", inv.Command)
		h.sendError(client, "Unknown command '"+inv.Command+"'.")
		return
	}

	start := time.Now()
	err := h.handlers[cmd](ctx, client, inv.Args)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		h.sendError(client, errorMessage(err))
	}
	h.metrics.observeCommand(cmd, outcome, time.Since(start))
}

func errorMessage(err error) string {
	var argErr argumentError
	if errors.As(err, &argErr) {
		return argErr.Error()
	}
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	return unexpectedErrorMessage
}

func (h *Hub) createNewEnvironment(ctx context.Context, _ Subscriber, args []json.RawMessage) error {
	var name string
	if err := decodeArgs(CommandCreateNewEnvironment, args, &name); err != nil {
		return argumentError{err}
	}
	if err := h.envs.AddNewEnvironment(ctx, &domain.Environment{Name: name}); err != nil {
		return err
	}
	h.refreshEnvironments(ctx, CommandCreateNewEnvironment)
	return nil
}

func (h *Hub) removeEnvironment(ctx context.Context, _ Subscriber, args []json.RawMessage) error {
	var id int64
	if err := decodeArgs(CommandRemoveEnvironment, args, &id); err != nil {
		return argumentError{err}
	}
	if err := h.envs.DeleteEnvironment(ctx, id); err != nil {
		return err
	}
	h.refreshEnvironments(ctx, CommandRemoveEnvironment)
	return nil
}

func (h *Hub) getAllEnvironments(ctx context.Context, client Subscriber, args []json.RawMessage) error {
	if err := decodeArgs(CommandGetAllEnvironments, args); err != nil {
		return argumentError{err}
	}
	envs, err := h.envs.GetAllEnvironments(ctx)
	if err != nil {
		return err
	}
	return h.unicast(client, TypeEnvironmentsAll, envs)
}

func (h *Hub) createNewServer(ctx context.Context, _ Subscriber, args []json.RawMessage) error {
	var server domain.Server
	if err := decodeArgs(CommandCreateNewServer, args, &server); err != nil {
		return argumentError{err}
	}
	if err := h.servers.AddNewServer(ctx, &server); err != nil {
		return err
	}
	h.refreshServers(ctx, CommandCreateNewServer)
	return nil
}

func (h *Hub) removeServer(ctx context.Context, _ Subscriber, args []json.RawMessage) error {
	var id int64
	if err := decodeArgs(CommandRemoveServer, args, &id); err != nil {
		return argumentError{err}
	}
	if err := h.servers.DeleteServer(ctx, id); err != nil {
		return err
	}
	h.refreshServers(ctx, CommandRemoveServer)
	return nil
}

func (h *Hub) updateServer(ctx context.Context, _ Subscriber, args []json.RawMessage) error {
	var server domain.Server
	if err := decodeArgs(CommandUpdateServer, args, &server); err != nil {
		return argumentError{err}
	}
	if err := h.servers.UpdateServer(ctx, &server); err != nil {
		return err
	}
	h.refreshServers(ctx, CommandUpdateServer)
	return nil
}

func (h *Hub) getAllServers(ctx context.Context, client Subscriber, args []json.RawMessage) error {
	if err := decodeArgs(CommandGetAllServers, args); err != nil {
		return argumentError{err}
	}
	servers, err := h.servers.GetAllServers(ctx)
	if err != nil {
		return err
	}
	return h.unicast(client, TypeServersAll, servers)
}

func (h *Hub) getServersForEnvironment(ctx context.Context, client Subscriber, args []json.RawMessage) error {
	var envID int64
	if err := decodeArgs(CommandGetServersForEnvironment, args, &envID); err != nil {
		return argumentError{err}
	}
	servers, err := h.servers.GetServersForEnvironment(ctx, envID)
	if err != nil {
		return err
	}
	return h.unicast(client, TypeServersForEnvironment, servers)
}

// refreshEnvironments pushes the full environment list to every client. A
// failed re-read is logged and nothing is broadcast; the mutation stands.
func (h *Hub) refreshEnvironments(ctx context.Context, cause Command) {
	envs, err := h.envs.GetAllEnvironments(ctx)
	if err != nil {
		h.refreshFailed(cause, TypeEnvironmentsAll, err)
		return
	}
	h.broadcastMessage(TypeEnvironmentsAll, envs)
}

// refreshServers pushes the full server list to every client.
func (h *Hub) refreshServers(ctx context.Context, cause Command) {
	servers, err := h.servers.GetAllServers(ctx)
	if err != nil {
		h.refreshFailed(cause, TypeServersAll, err)
		return
	}
	h.broadcastMessage(TypeServersAll, servers)
}

func (h *Hub) refreshFailed(cause Command, msgType string, err error) {
	h.metrics.refreshFailures.WithLabelValues(msgType).Inc()
	h.log.Error("post-mutation refresh failed; broadcast skipped", "command", cause.String(), "type", msgType, "error", err)
}

func (h *Hub) broadcastMessage(msgType string, data any) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		h.log.Error("encode broadcast", "type", msgType, "error", err)
		return
	}
	h.Broadcast(payload)
}

func (h *Hub) unicast(client Subscriber, msgType string, data any) error {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		h.log.Error("encode reply", "type", msgType, "error", err)
		return err
	}
	if err := client.Send(payload); err != nil {
		h.log.Debug("reply not delivered", "connection_id", client.ID(), "type", msgType, "error", err)
	}
	return nil
}

func (h *Hub) sendError(client Subscriber, message string) {
	payload, err := encodeError(message)
	if err != nil {
		h.log.Error("encode error reply", "error", err)
		return
	}
	if err := client.Send(payload); err != nil {
		h.log.Debug("error reply not delivered", "connection_id", client.ID(), "error", err)
	}
}
