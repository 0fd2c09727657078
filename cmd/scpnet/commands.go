// ABOUTME: Command implementations for the scpnet CLI
// ABOUTME: Identity, personnel, reports, comms, terminal, and dossier commands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/scpnet/scpnet-client/internal/archive"
	"github.com/scpnet/scpnet-client/internal/clearance"
	"github.com/scpnet/scpnet-client/internal/identity"
	"github.com/scpnet/scpnet-client/internal/mirror"
	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/store"
)

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// requireUser loads and revalidates the cached session.
func requireUser(ctx context.Context, a *app) (*store.User, error) {
	user, err := a.identity.RefreshSession(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("not logged in (run: scpnet login <email>)")
	}
	return user, nil
}

// requireNav gates a command on the navigation clearance model.
func requireNav(ctx context.Context, a *app, item clearance.NavItem) (*store.User, error) {
	user, err := requireUser(ctx, a)
	if err != nil {
		return nil, err
	}
	if !clearance.NavVisible(user.Subject(), item) {
		return nil, fmt.Errorf("clearance insufficient for %s: %w", item, identity.ErrNotAuthorized)
	}
	return user, nil
}

// displayClearance renders a user's clearance with the cosmetic admin mask.
func displayClearance(u *store.User) string {
	return clearance.Masked(u.ID, u.Clearance).String()
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: register <email> <name...>")
	}
	email := args[0]
	name := strings.Join(args[1:], " ")

	password, err := prompt("Password")
	if err != nil {
		return err
	}
	requested, err := prompt("Requested clearance (1-6)")
	if err != nil {
		return err
	}
	level, _ := strconv.Atoi(requested)

	if err := a.identity.Register(ctx, email, name, password, clearance.Level(level)); err != nil {
		return err
	}

	color.Green("Account requested.")
	fmt.Println("An administrator must approve the account before login.")
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	email := a.prof.Email
	if len(args) >= 1 {
		email = args[0]
	}
	if email == "" {
		return fmt.Errorf("usage: login <email>")
	}

	password, err := prompt("Password")
	if err != nil {
		return err
	}

	user, err := a.identity.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrAwaitingApproval) {
			color.Yellow("Account is awaiting administrator approval.")
			return nil
		}
		return err
	}

	a.prof.Email = email
	if err := saveProfile(a.prof); err != nil {
		a.logger.Warn("saving profile failed", "error", err)
	}

	color.Green("ACCESS GRANTED")
	fmt.Printf("  %s / clearance %s\n", user.Name, displayClearance(user))
	return nil
}

func cmdLogout(ctx context.Context, a *app) error {
	if err := a.identity.Logout(ctx); err != nil {
		return err
	}
	color.Green("Session cleared.")
	return nil
}

func cmdStatus(ctx context.Context, a *app) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	if a.remote == nil {
		yellow.Printf("  Link:      ")
		fmt.Println("LOCAL ONLY (no backend configured)")
	} else {
		status := a.reports.Refresh(ctx)
		switch status {
		case mirror.StatusRemote:
			green.Printf("  Link:      ")
			fmt.Printf("REMOTE (%s)\n", a.cfg.Backend.URL)
		case mirror.StatusDegraded:
			yellow.Printf("  Link:      ")
			fmt.Printf("DEGRADED (serving local mirror of %s)\n", a.cfg.Backend.URL)
		default:
			yellow.Printf("  Link:      ")
			fmt.Println(string(status))
		}
	}

	user, err := a.identity.RefreshSession(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		yellow.Printf("  Identity:  ")
		fmt.Println("(not logged in)")
		fmt.Println()
		return nil
	}

	green.Printf("  Identity:  ")
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
	green.Printf("  Clearance: ")
	fmt.Println(displayClearance(user))
	if user.Simulated != nil {
		yellow.Printf("  Simulated: ")
		fmt.Printf("%s (data view only, authorization unchanged)\n", user.Simulated.String())
	}
	fmt.Println()
	return nil
}

func cmdPersonnel(ctx context.Context, a *app, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdPersonnelList(ctx, a)
	case "approve":
		if len(args) < 1 {
			return fmt.Errorf("usage: personnel approve <id>")
		}
		return cmdPersonnelApprove(ctx, a, args[0])
	case "terminate", "rm":
		if len(args) < 1 {
			return fmt.Errorf("usage: personnel terminate <id>")
		}
		return cmdPersonnelTerminate(ctx, a, args[0])
	default:
		return fmt.Errorf("unknown personnel subcommand: %s (use list, approve, terminate)", subcmd)
	}
}

func cmdPersonnelList(ctx context.Context, a *app) error {
	user, err := requireUser(ctx, a)
	if err != nil {
		return err
	}
	viewer := user.Subject()

	users, err := a.personnel.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Personnel Directory")
	cyan.Println("  -------------------")
	printSetStatus(a.personnel.Status())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tCLEARANCE\tSTATUS")
	fmt.Fprintln(w, "  --\t----\t---------\t------")
	shown := 0
	for _, u := range users {
		if !clearance.ContactVisible(viewer, u.ID, u.Clearance) {
			continue
		}
		status := "active"
		if !u.Approved {
			status = "pending"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", truncate(u.ID, 12), truncate(u.Name, 24), displayClearance(u), status)
		shown++
	}
	w.Flush()
	if shown == 0 {
		fmt.Println("  (no visible personnel)")
	}
	fmt.Println()
	return nil
}

func cmdPersonnelApprove(ctx context.Context, a *app, id string) error {
	if _, err := requireUser(ctx, a); err != nil {
		return err
	}

	scope, err := a.identity.Approve(ctx, id)
	if err != nil {
		return err
	}

	color.Green("Account approved.")
	noteLocalScope(a, scope)
	return nil
}

func cmdPersonnelTerminate(ctx context.Context, a *app, id string) error {
	if _, err := requireUser(ctx, a); err != nil {
		return err
	}

	if err := a.identity.Terminate(ctx, id); err != nil {
		return err
	}
	color.Green("Record terminated.")
	return nil
}

func cmdReports(ctx context.Context, a *app, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdReportsList(ctx, a)
	case "file", "create", "add":
		return cmdReportsFile(ctx, a)
	case "delete", "rm":
		if len(args) < 1 {
			return fmt.Errorf("usage: reports delete <id>")
		}
		return cmdReportsDelete(ctx, a, args[0])
	default:
		return fmt.Errorf("unknown reports subcommand: %s (use list, file, delete)", subcmd)
	}
}

func cmdReportsList(ctx context.Context, a *app) error {
	user, err := requireNav(ctx, a, clearance.NavReports)
	if err != nil {
		return err
	}
	viewer := user.Subject()

	reports, err := a.reports.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Incident Reports")
	cyan.Println("  ----------------")
	printSetStatus(a.reports.Status())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTYPE\tSEVERITY\tTITLE\tAUTHOR\tFILED")
	fmt.Fprintln(w, "  --\t----\t--------\t-----\t------\t-----")
	shown := 0
	for _, r := range reports {
		if !clearance.ReportVisible(viewer, r.AuthorID, r.AuthorClearance) {
			continue
		}
		filed := r.CreatedAt.Format("Jan 02 15:04")
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(r.ID, 12), r.Type, r.Severity, truncate(r.Title, 32), truncate(r.AuthorName, 18), filed)
		shown++
	}
	w.Flush()
	if shown == 0 {
		fmt.Println("  (no visible reports)")
	}
	fmt.Println()
	return nil
}

func cmdReportsFile(ctx context.Context, a *app) error {
	user, err := requireNav(ctx, a, clearance.NavReports)
	if err != nil {
		return err
	}

	rtype, err := prompt("Type (INCIDENT/OBSERVATION/AUDIT/SECURITY)")
	if err != nil {
		return err
	}
	severity, err := prompt("Severity (LOW/MEDIUM/HIGH/CRITICAL)")
	if err != nil {
		return err
	}
	title, err := prompt("Title")
	if err != nil {
		return err
	}
	content, err := prompt("Content")
	if err != nil {
		return err
	}

	rtype = strings.ToUpper(strings.TrimSpace(rtype))
	severity = strings.ToUpper(strings.TrimSpace(severity))
	if title == "" || content == "" {
		return fmt.Errorf("title and content are required")
	}
	switch rtype {
	case store.ReportIncident, store.ReportObservation, store.ReportAudit, store.ReportSecurity:
	default:
		return fmt.Errorf("unknown report type %q", rtype)
	}
	switch severity {
	case store.SeverityLow, store.SeverityMedium, store.SeverityHigh, store.SeverityCritical:
	default:
		return fmt.Errorf("unknown severity %q", severity)
	}

	report := &store.Report{
		ID:              uuid.New().String(),
		AuthorID:        user.ID,
		AuthorName:      user.Name,
		AuthorClearance: user.Clearance,
		Type:            rtype,
		Severity:        severity,
		Title:           title,
		Content:         content,
		CreatedAt:       time.Now().UTC(),
	}

	imagePath, err := prompt("Attachment image path (optional)")
	if err != nil {
		return err
	}
	if imagePath != "" {
		url, uerr := uploadAttachment(ctx, a, report.ID, imagePath)
		if uerr != nil {
			color.Yellow("  attachment skipped: %v", uerr)
		} else {
			report.ImageURL = url
		}
	}

	if err := a.reports.Create(ctx, report); err != nil {
		return err
	}

	color.Green("Report filed: %s", report.ID)
	if a.remote != nil && a.reports.Status() != mirror.StatusRemote {
		color.Yellow("  (applied locally only; not propagated to the backend)")
	}
	return nil
}

func cmdReportsDelete(ctx context.Context, a *app, id string) error {
	user, err := requireNav(ctx, a, clearance.NavReports)
	if err != nil {
		return err
	}
	reports, err := a.reports.List(ctx)
	if err != nil {
		return err
	}
	var target *store.Report
	for _, r := range reports {
		if r.ID == id {
			target = r
			break
		}
	}
	if target == nil {
		return store.ErrNotFound
	}
	if !clearance.ReportDeletable(user.Subject(), target.AuthorID) {
		return fmt.Errorf("deleting reports: %w", identity.ErrNotAuthorized)
	}

	if err := a.reports.Delete(ctx, target); err != nil {
		if errors.Is(err, remote.ErrPermissionDenied) {
			return fmt.Errorf("backend refused the delete; record kept: %w", err)
		}
		return err
	}
	color.Green("Report deleted.")
	return nil
}

func cmdChat(ctx context.Context, a *app, args []string) error {
	user, err := requireNav(ctx, a, clearance.NavComms)
	if err != nil {
		return err
	}

	if len(args) >= 1 && args[0] == "watch" {
		return chatWatch(ctx, a)
	}

	if len(args) >= 1 {
		msg := &store.Message{
			ID:        uuid.New().String(),
			SenderID:  user.ID,
			Text:      strings.Join(args, " "),
			CreatedAt: time.Now().UTC(),
		}
		if err := a.general.Create(ctx, msg); err != nil {
			return err
		}
	}

	msgs, err := a.general.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  General Channel")
	cyan.Println("  ---------------")
	printSetStatus(a.general.Status())

	if len(msgs) == 0 {
		fmt.Println("  (channel silent)")
	}
	for _, m := range msgs {
		fmt.Printf("  [%s] %s: %s\n", m.CreatedAt.Format("15:04"), truncate(m.SenderID, 12), m.Text)
	}
	fmt.Println()
	return nil
}

// chatWatch streams live channel traffic until interrupted.
func chatWatch(ctx context.Context, a *app) error {
	if a.remote == nil {
		return fmt.Errorf("chat watch needs a configured backend")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sub, err := a.remote.Subscribe(ctx, a.sessionToken(ctx), remote.TableGeneralMessages)
	if err != nil {
		return err
	}

	feed := mirror.NewFeed(nil, nil, a.general, nil, a.logger)
	go feed.Run(ctx, sub)

	events, subID := a.general.Subscribe(ctx)
	defer a.general.Unsubscribe(subID)

	color.Cyan("Watching the general channel. Ctrl-C to stop.")
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != mirror.EventInsert {
				continue
			}
			m := ev.Item
			fmt.Printf("  [%s] %s: %s\n", m.CreatedAt.Format("15:04"), truncate(m.SenderID, 12), m.Text)
		}
	}
}

func cmdTerminal(ctx context.Context, a *app) error {
	if _, err := requireNav(ctx, a, clearance.NavTerminal); err != nil {
		return err
	}

	client, err := a.archiveClient()
	if err != nil {
		if errors.Is(err, archive.ErrNotConfigured) {
			return fmt.Errorf("no archive credentials (set SCPNET_ARCHIVE_KEY or archive.api_key)")
		}
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("A.R.G.U.S. terminal. Empty line to disconnect.")

	var history []archive.Message
	for {
		line, err := prompt(">")
		if err != nil {
			return err
		}
		if line == "" {
			fmt.Println("CONNECTION TERMINATED")
			return nil
		}

		ch, err := client.Chat(ctx, history, line)
		if err != nil {
			color.Red("  %v", err)
			continue
		}

		var reply strings.Builder
		for chunk := range ch {
			if chunk.Error != nil {
				color.Red("  %v", chunk.Error)
				break
			}
			fmt.Print(chunk.Content)
			reply.WriteString(chunk.Content)
			if chunk.Done {
				break
			}
		}
		fmt.Println()

		history = append(history,
			archive.Message{Role: "user", Content: line},
			archive.Message{Role: "assistant", Content: reply.String()},
		)
	}
}

func cmdDossier(ctx context.Context, a *app, args []string) error {
	if _, err := requireNav(ctx, a, clearance.NavArchive); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: dossier <object-id> [--html <file>]")
	}

	objectID := args[0]
	htmlPath := ""
	for i := 1; i < len(args); i++ {
		if args[i] == "--html" && i+1 < len(args) {
			htmlPath = args[i+1]
			i++
		}
	}

	client, err := a.archiveClient()
	if err != nil {
		if errors.Is(err, archive.ErrNotConfigured) {
			return fmt.Errorf("no archive credentials (set SCPNET_ARCHIVE_KEY or archive.api_key)")
		}
		return err
	}

	doc, err := client.Synthesize(ctx, objectID)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(archive.Markdown(doc))
	fmt.Println()

	if htmlPath != "" {
		html, err := archive.RenderHTML(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(htmlPath, html, 0644); err != nil {
			return fmt.Errorf("writing dossier: %w", err)
		}
		color.Green("Dossier exported to %s", htmlPath)
	}
	return nil
}

func cmdSimulate(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: simulate <level|off>")
	}
	if _, err := requireUser(ctx, a); err != nil {
		return err
	}

	if args[0] == "off" {
		if err := a.identity.SetSimulatedClearance(ctx, nil); err != nil {
			return err
		}
		color.Green("Simulation cleared.")
		return nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("usage: simulate <level|off>")
	}
	level := clearance.Level(n)
	if err := a.identity.SetSimulatedClearance(ctx, &level); err != nil {
		return err
	}
	color.Green("Simulating clearance %s.", level)
	return nil
}

// uploadAttachment pushes a local image to backend object storage and
// returns its public URL. Local mode has no object store.
func uploadAttachment(ctx context.Context, a *app, reportID, path string) (string, error) {
	if a.remote == nil {
		return "", fmt.Errorf("attachments need a configured backend")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading attachment: %w", err)
	}

	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		contentType = "image/png"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".gif":
		contentType = "image/gif"
	}

	object := reportID + filepath.Ext(path)
	return a.remote.UploadAttachment(ctx, a.sessionToken(ctx), object, contentType, data)
}

func noteLocalScope(a *app, scope identity.ApplyScope) {
	if a.remote != nil && scope == identity.ApplyLocal {
		color.Yellow("  (applied locally only; not propagated to the backend)")
	}
}

func printSetStatus(status mirror.Status) {
	if status == mirror.StatusDegraded {
		color.Yellow("  [local mirror: backend unavailable]")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
