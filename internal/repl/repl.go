// Package repl implements the line-oriented chat mode used when a full TUI
// is unwanted (dumb terminals, scripting, debugging).
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/chat"
	"github.com/nhahub/NHA-065/internal/download"
	"github.com/nhahub/NHA-065/internal/exchange"
	"github.com/nhahub/NHA-065/internal/logging"
)

// Repl runs a line-oriented chat session against the controller.
type Repl struct {
	controller *exchange.Controller
	client     *api.Client
	saver      Saver
	log        *logging.Logger

	in  io.Reader
	out io.Writer

	// lastImage remembers the most recent image message for /save.
	lastImage *chat.Message

	// Reveal progress for the in-flight exchange.
	revealing bool
	printed   int

	userStyle   *color.Color
	aiStyle     *color.Color
	errStyle    *color.Color
	noticeStyle *color.Color
}

// Saver persists an image reference to disk. *download.Saver satisfies it.
type Saver interface {
	Save(ctx context.Context, ref, filename string) (string, error)
}

// New creates a REPL reading from in and writing to out.
func New(controller *exchange.Controller, client *api.Client, saver Saver, logger *logging.Logger, in io.Reader, out io.Writer) *Repl {
	return &Repl{
		controller:  controller,
		client:      client,
		saver:       saver,
		log:         logger,
		in:          in,
		out:         out,
		userStyle:   color.New(color.FgGreen, color.Bold),
		aiStyle:     color.New(color.FgCyan),
		errStyle:    color.New(color.FgRed, color.Bold),
		noticeStyle: color.New(color.FgYellow),
	}
}

// Run drives the chat loop until EOF, "exit", or context cancellation.
func (r *Repl) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, r.aiStyle.Sprint("glyph — AI logo assistant"))
	fmt.Fprintln(r.out, "Type a message and press Enter. Type /help for commands, 'exit' to quit.")
	fmt.Fprintln(r.out)

	r.controller.SetListener(r.listener())
	defer r.controller.SetListener(nil)

	r.printPlanLine(ctx)
	if err := r.controller.RefreshHistory(ctx); err != nil {
		r.log.Debug("initial history load failed: %v", err)
	}

	scanner := bufio.NewScanner(r.in)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(r.out, r.userStyle.Sprint("You: "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		case strings.HasPrefix(line, "/"):
			r.runCommand(ctx, line)
		default:
			r.sendMessage(ctx, line)
		}
	}
}

// listener builds the presentation listener printing exchange events inline.
// The reveal prints word deltas after the assistant prompt.
func (r *Repl) listener() exchange.Listener {
	return exchange.Funcs{
		OnRevealUpdate: func(partial string) {
			if !r.revealing {
				fmt.Fprint(r.out, r.aiStyle.Sprint("Assistant: "))
				r.revealing = true
			}
			fmt.Fprint(r.out, partial[r.printed:])
			r.printed = len(partial)
		},
		OnMessageAppended: func(msg chat.Message) {
			switch {
			case msg.IsError:
				if r.revealing {
					fmt.Fprintln(r.out)
					r.revealing = false
				}
				fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+msg.Text)
			case msg.Role == chat.RoleAssistant && msg.ImageRef != "":
				img := msg
				r.lastImage = &img
				fmt.Fprintln(r.out, r.aiStyle.Sprint("Generated: ")+describeImage(msg))
				fmt.Fprintln(r.out, "  Use /save to download it.")
			case msg.Role == chat.RoleAssistant && r.revealing:
				// Text fully revealed; close the line.
				fmt.Fprintln(r.out)
				r.revealing = false
			}
		},
		OnGeneratingChanged: func(active bool) {
			if active {
				fmt.Fprintln(r.out, r.noticeStyle.Sprint("Generating your logo..."))
			}
		},
		OnNotice: func(text string) {
			fmt.Fprintln(r.out, r.noticeStyle.Sprint(text))
		},
	}
}

func (r *Repl) sendMessage(ctx context.Context, text string) {
	r.revealing = false
	r.printed = 0
	if _, err := r.controller.SendMessage(ctx, text); err != nil {
		if err == chat.ErrEmptyMessage {
			return
		}
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
	}
	fmt.Fprintln(r.out)
}

func (r *Repl) runCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Fprintln(r.out, "/new                  start a new conversation")
		fmt.Fprintln(r.out, "/history              list conversations")
		fmt.Fprintln(r.out, "/switch <n>           open conversation n from /history")
		fmt.Fprintln(r.out, "/delete <n>           delete conversation n")
		fmt.Fprintln(r.out, "/clear                delete ALL conversations")
		fmt.Fprintln(r.out, "/search <text>        search stored exchanges")
		fmt.Fprintln(r.out, "/stats                show history statistics")
		fmt.Fprintln(r.out, "/save                 save the last generated image")
		fmt.Fprintln(r.out, "/ref <path>           condition generation on a local image")
		fmt.Fprintln(r.out, "/ref off              disable reference conditioning")
		fmt.Fprintln(r.out, "/profile              show account and plan")
		fmt.Fprintln(r.out, "/profile set <name>   update first and last name")
		fmt.Fprintln(r.out, "/unsubscribe          cancel the Pro subscription")
		fmt.Fprintln(r.out, "/export               list full history for export")
	case "/new":
		id := r.controller.NewChat()
		fmt.Fprintf(r.out, "Started new conversation %s\n", id)
	case "/history":
		r.printHistory(ctx)
	case "/switch":
		if id, ok := r.resolveIndex(args); ok {
			if err := r.controller.SwitchTo(ctx, id); err == nil {
				r.printTranscript()
			}
		}
	case "/delete":
		if id, ok := r.resolveIndex(args); ok {
			if err := r.controller.DeleteConversation(ctx, id); err == nil {
				fmt.Fprintln(r.out, "Deleted.")
			}
		}
	case "/clear":
		if err := r.controller.ClearHistory(ctx); err == nil {
			fmt.Fprintln(r.out, "All history cleared.")
		}
	case "/search":
		r.searchHistory(ctx, strings.Join(args, " "))
	case "/stats":
		r.printStats(ctx)
	case "/save":
		r.saveLastImage(ctx)
	case "/ref":
		r.setReference(args)
	case "/profile":
		if len(args) > 0 && args[0] == "set" {
			r.setProfile(ctx, args[1:])
			return
		}
		r.printProfile(ctx)
	case "/unsubscribe":
		r.unsubscribe(ctx)
	case "/export":
		r.printExport(ctx)
	default:
		fmt.Fprintf(r.out, "Unknown command %s (try /help)\n", cmd)
	}
}

func (r *Repl) printHistory(ctx context.Context) {
	if err := r.controller.RefreshHistory(ctx); err != nil {
		r.log.Debug("history refresh failed: %v", err)
	}
	items := r.controller.HistoryItems()
	if len(items) == 0 {
		fmt.Fprintln(r.out, "No history yet.")
		return
	}
	for i, item := range items {
		marker := "  "
		if item.Active {
			marker = "* "
		}
		fmt.Fprintf(r.out, "%s%2d. %s (%d messages)\n", marker, i+1, item.Preview, item.MessageCount)
	}
}

func (r *Repl) resolveIndex(args []string) (string, bool) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "Usage: /switch <n> (see /history)")
		return "", false
	}
	n, err := strconv.Atoi(args[0])
	items := r.controller.HistoryItems()
	if err != nil || n < 1 || n > len(items) {
		fmt.Fprintln(r.out, "No such conversation.")
		return "", false
	}
	return items[n-1].ConversationID, true
}

func (r *Repl) printTranscript() {
	for _, msg := range r.controller.Messages() {
		switch {
		case msg.IsError:
			fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+msg.Text)
		case msg.Role == chat.RoleUser:
			fmt.Fprintln(r.out, r.userStyle.Sprint("You: ")+msg.Text)
		case msg.ImageRef != "":
			img := msg
			r.lastImage = &img
			fmt.Fprintln(r.out, r.aiStyle.Sprint("Generated: ")+describeImage(msg))
		default:
			fmt.Fprintln(r.out, r.aiStyle.Sprint("Assistant: ")+msg.Text)
		}
	}
}

func (r *Repl) saveLastImage(ctx context.Context) {
	if r.lastImage == nil {
		fmt.Fprintln(r.out, "No generated image in this session yet.")
		return
	}
	path, err := r.saver.Save(ctx, r.lastImage.ImageRef, r.lastImage.Filename)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintf(r.out, "Saved to %s\n", path)
}

// setReference enables reference-image conditioning on a local file, or
// disables it with "off". The file is encoded as a data URI and rides along
// on subsequent generation requests.
func (r *Repl) setReference(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "Usage: /ref <path> or /ref off")
		return
	}
	s := r.controller.Settings()
	if args[0] == "off" {
		s.UseIPAdapter = false
		if err := r.controller.UpdateSettings(s); err != nil {
			fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
			return
		}
		fmt.Fprintln(r.out, "Reference conditioning disabled.")
		return
	}

	uri, err := download.EncodeFileDataURI(args[0])
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	s.UseIPAdapter = true
	s.ReferenceImage = uri
	if err := r.controller.UpdateSettings(s); err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintf(r.out, "Reference conditioning on %s (strength %.2f).\n", filepath.Base(args[0]), s.IPAdapterScale)
}

func (r *Repl) searchHistory(ctx context.Context, query string) {
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(r.out, "Usage: /search <text>")
		return
	}
	entries, err := r.client.SearchHistory(ctx, query)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No matches.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(r.out, "  [%s] %s\n", e.Timestamp, firstNonEmpty(e.UserMessage, e.ImagePrompt, e.AIResponse))
	}
}

func (r *Repl) printStats(ctx context.Context) {
	stats, err := r.client.HistoryStats(ctx)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintf(r.out, "%d exchanges (%d text, %d images)\n",
		stats.TotalMessages, stats.TextMessages, stats.ImageMessages)
	if stats.FirstMessageDate != "" {
		fmt.Fprintf(r.out, "First message: %s\n", stats.FirstMessageDate)
	}
}

func (r *Repl) setProfile(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "Usage: /profile set <first> [<last>]")
		return
	}
	first := args[0]
	last := strings.Join(args[1:], " ")
	profile, err := r.client.SaveProfile(ctx, first, last)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintln(r.out, "Profile updated: "+PlanLine(profile))
}

func (r *Repl) unsubscribe(ctx context.Context) {
	if err := r.client.Unsubscribe(ctx); err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintln(r.out, "Subscription cancelled. You are on the Free Plan.")
}

func (r *Repl) printProfile(ctx context.Context) {
	profile, err := r.client.GetProfile(ctx)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintln(r.out, PlanLine(profile))
}

func (r *Repl) printPlanLine(ctx context.Context) {
	profile, err := r.client.GetProfile(ctx)
	if err != nil {
		// Anonymous or offline; the plan line is informational only.
		r.log.Debug("profile load failed: %v", err)
		return
	}
	fmt.Fprintln(r.out, PlanLine(profile))
	fmt.Fprintln(r.out)
}

func (r *Repl) printExport(ctx context.Context) {
	payload, err := r.client.ExportHistory(ctx)
	if err != nil {
		fmt.Fprintln(r.out, r.errStyle.Sprint("Error: ")+err.Error())
		return
	}
	fmt.Fprintf(r.out, "%d item(s):\n", payload.TotalItems)
	for _, e := range payload.History {
		fmt.Fprintf(r.out, "  [%s] %s\n", e.Timestamp, firstNonEmpty(e.UserMessage, e.ImagePrompt, e.AIResponse))
	}
}

// PlanLine formats the account plan summary shown in the header.
func PlanLine(p *api.Profile) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" && p.Email != "" {
		name = strings.SplitN(p.Email, "@", 2)[0]
	}
	if p.IsPro {
		return fmt.Sprintf("%s — Pro Plan, unlimited prompts", name)
	}
	remaining := api.FreeDailyLimit - p.PromptCount
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%s — Free Plan, %d/%d prompts remaining", name, remaining, api.FreeDailyLimit)
}

func describeImage(msg chat.Message) string {
	if msg.Metadata == nil {
		return msg.Filename
	}
	return fmt.Sprintf("%s (%s, %d steps, %s)", msg.Filename, msg.Metadata.Model, msg.Metadata.Steps, msg.Metadata.Dimensions)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "(empty)"
}
