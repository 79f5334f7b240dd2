package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"livesync/internal/client"
	"livesync/internal/models"
)

/*
LEARNING: A LINE-ORIENTED CONSOLE

Plain lines are chat. Lines starting with "/" are commands:

	/open file|document <id>   load and start editing a resource
	/edit <id> <content>       replace the resource content
	/title <id> <title>        rename a document
	/close <id>                stop editing
	/focus|/blur|/seen <ch>    drive notification flags (chat, alerts, join_requests)
	/who                       print the active users

The console only talks to a narrow interface so tests can drive it with a fake.
*/

type consoleBinding interface {
	SendChat(text string) bool
	LoadResource(ctx context.Context, ref models.ResourceRef) (models.EditableResource, error)
	SendEdit(resourceID, content string) error
	SetTitle(resourceID, title string) error
	CloseResource(id string)
	Focus(ch models.Channel)
	Blur(ch models.Channel)
	MarkSeen(ch models.Channel)
	Presence() []string
}

var errUsage = errors.New("usage")

func runConsole(ctx context.Context, in *bufio.Scanner, b consoleBinding) {
	for in.Scan() {
		reply, err := execute(ctx, b, in.Text())
		if err != nil {
			log.Printf("⚠️  %v", err)
			continue
		}
		if reply != "" {
			log.Printf("✓ %s", reply)
		}
	}
	if err := in.Err(); err != nil {
		log.Printf("⚠️  Console read error: %v", err)
	}
}

// execute runs one console line and returns a short reply
func execute(ctx context.Context, b consoleBinding, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	if !strings.HasPrefix(line, "/") {
		if !b.SendChat(line) {
			return "", fmt.Errorf("chat not sent: connection is not open")
		}
		return "", nil
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "open":
		kind, id, ok := strings.Cut(rest, " ")
		if !ok || (kind != string(models.ResourceFile) && kind != string(models.ResourceDocument)) {
			return "", fmt.Errorf("%w: /open file|document <id>", errUsage)
		}
		res, err := b.LoadResource(ctx, models.ResourceRef{ID: strings.TrimSpace(id), Kind: models.ResourceKind(kind)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Opened %s %s (%d bytes)", res.Ref.Kind, res.Ref.ID, len(res.LocalContent)), nil

	case "edit":
		id, content, ok := strings.Cut(rest, " ")
		if !ok || id == "" {
			return "", fmt.Errorf("%w: /edit <id> <content>", errUsage)
		}
		if err := b.SendEdit(id, content); err != nil {
			return "", fmt.Errorf("edit %s: %w", id, err)
		}
		return "", nil

	case "title":
		id, title, ok := strings.Cut(rest, " ")
		if !ok || id == "" {
			return "", fmt.Errorf("%w: /title <id> <title>", errUsage)
		}
		if err := b.SetTitle(id, title); err != nil {
			return "", fmt.Errorf("title %s: %w", id, err)
		}
		return "", nil

	case "close":
		if rest == "" {
			return "", fmt.Errorf("%w: /close <id>", errUsage)
		}
		b.CloseResource(rest)
		return "Closed " + rest, nil

	case "focus", "blur", "seen":
		ch := models.Channel(rest)
		if !ch.Valid() {
			return "", fmt.Errorf("%w: /%s chat|alerts|join_requests", errUsage, cmd)
		}
		switch cmd {
		case "focus":
			b.Focus(ch)
		case "blur":
			b.Blur(ch)
		default:
			b.MarkSeen(ch)
		}
		return "", nil

	case "who":
		users := b.Presence()
		if len(users) == 0 {
			return "No active users", nil
		}
		return "Active: " + strings.Join(users, ", "), nil
	}

	return "", fmt.Errorf("unknown command /%s", cmd)
}

// watchProject logs the project-scope traffic a terminal user cares about
func watchProject(b *client.Binding) {
	subscribe(b, models.TypeChatMessage, func(msg models.Inbound) {
		m := msg.(*models.ChatMessage)
		log.Printf("💬 %s: %s", m.Username, m.Text)
	})
	subscribe(b, models.TypeFileTreeUpdate, func(models.Inbound) {
		log.Printf("📁 File tree changed")
	})
	subscribe(b, models.TypeDocListUpdate, func(models.Inbound) {
		log.Printf("📄 Document list changed")
	})
	subscribe(b, models.TypeAlertUpdate, func(msg models.Inbound) {
		log.Printf("🔔 %d unresolved alerts", msg.(*models.AlertInvalidate).UnresolvedCount)
	})
}

func watchUser(b *client.Binding) {
	subscribe(b, models.TypeProjectApproval, func(msg models.Inbound) {
		log.Printf("✓ Join request approved: %s", string(msg.(*models.ProjectApproved).Project))
	})
	subscribe(b, models.TypeNewJoinRequest, func(models.Inbound) {
		log.Printf("🔔 New join request")
	})
}

func subscribe(b *client.Binding, t models.MessageType, h func(models.Inbound)) {
	if _, err := b.Subscribe(t, h); err != nil {
		log.Printf("⚠️  Failed to subscribe to %s: %v", t, err)
	}
}

func logStatus(ev models.StatusEvent) {
	if ev.Err != nil {
		log.Printf("⚠️  [%s] %s (attempt %d): %v", ev.Scope, ev.State, ev.Attempt, ev.Err)
		return
	}
	log.Printf("🔌 [%s] %s", ev.Scope, ev.State)
}

func logSave(ev models.SaveEvent) {
	switch ev.Phase {
	case models.SaveFailed:
		log.Printf("❌ [%s] save %s %s failed: %v", ev.Scope, ev.Ref.Kind, ev.Ref.ID, ev.Err)
	case models.SaveSaved:
		log.Printf("💾 [%s] saved %s %s", ev.Scope, ev.Ref.Kind, ev.Ref.ID)
	}
}
