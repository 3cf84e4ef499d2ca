// Command unify wires ingestion, identity, merge and view components
// into a single CLI surface: ingest raw sources into the event store,
// expand or resolve a handle to a counterparty, and render a
// conversation or voice manuscript.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/Napageneral/unify/internal/config"
	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
	"github.com/Napageneral/unify/internal/identity"
	"github.com/Napageneral/unify/internal/ingest/calls"
	"github.com/Napageneral/unify/internal/ingest/email"
	"github.com/Napageneral/unify/internal/ingest/imessage"
	"github.com/Napageneral/unify/internal/merge"
	"github.com/Napageneral/unify/internal/render"
	"github.com/Napageneral/unify/internal/store"
	"github.com/Napageneral/unify/internal/views"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "unify",
		Short: "Unified communications cartographer",
		Long: `Unify folds iMessage/SMS, email and call history into a single
append-only event log, with hybrid-logical-clock ordering, identity
resolution, and conversation/voice-manuscript views over the result.`,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newPeopleCmd(),
		newIngestCmd(),
		newViewCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version, "commit": commit, "date": buildDate})
			} else {
				fmt.Printf("unify %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize unify's config, data directory and event store",
		Run: func(cmd *cobra.Command, args []string) {
			configDir, err := config.GetConfigDir()
			if err != nil {
				errExit("failed to get config directory: %v", err)
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				errExit("failed to get data directory: %v", err)
			}
			if err := os.MkdirAll(configDir, 0700); err != nil {
				errExit("failed to create config directory: %v", err)
			}
			if err := os.MkdirAll(dataDir, 0700); err != nil {
				errExit("failed to create data directory: %v", err)
			}

			cfg, err := config.Load()
			if err != nil {
				errExit("failed to load config: %v", err)
			}
			if err := cfg.Save(); err != nil {
				errExit("failed to save config: %v", err)
			}

			s, err := store.Open(cfg.EventStorePath)
			if err != nil {
				errExit("failed to initialize event store: %v", err)
			}
			defer s.Close()

			type Result struct {
				OK                 bool   `json:"ok"`
				Message            string `json:"message,omitempty"`
				ConfigDir          string `json:"config_dir,omitempty"`
				DataDir            string `json:"data_dir,omitempty"`
				EventStorePath     string `json:"event_store_path,omitempty"`
				PeopleRegistryPath string `json:"people_registry_path,omitempty"`
			}
			result := Result{
				OK:                 true,
				Message:            "unify initialized successfully",
				ConfigDir:          configDir,
				DataDir:            dataDir,
				EventStorePath:     cfg.EventStorePath,
				PeopleRegistryPath: cfg.PeopleRegistryPath,
			}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Event store: %s\n", result.EventStorePath)
				fmt.Printf("✓ People registry: %s\n", result.PeopleRegistryPath)
			}
		},
	}
}

// newPeopleCmd wires the identity-resolution surface: expanding a raw
// handle into its full handle set, and resolving a seed to a
// person_did with evidence against the event log.
func newPeopleCmd() *cobra.Command {
	peopleCmd := &cobra.Command{
		Use:   "people",
		Short: "Expand and resolve counterparty identities",
	}

	var vcardPath, csvPath string
	var useMacOS bool

	expandCmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand a seed handle to its full handle set, persisting the match",
		Run: func(cmd *cobra.Command, args []string) {
			seed, _ := cmd.Flags().GetString("seed")
			if seed == "" {
				errExit("the --seed flag is required")
			}

			cfg, err := config.Load()
			if err != nil {
				errExit("failed to load config: %v", err)
			}
			reg, err := identity.OpenRegistry(cfg.PeopleRegistryPath)
			if err != nil {
				errExit("failed to open people registry: %v", err)
			}

			sources := contactSources(cfg, vcardPath, csvPath, useMacOS)
			name, handles, origin, err := identity.ExpandHandles(reg, seed, sources)
			if err != nil {
				errExit("failed to expand handles: %v", err)
			}
			key, _, _ := reg.Lookup(seed)

			type Result struct {
				OK          bool     `json:"ok"`
				PersonDID   string   `json:"person_did"`
				DisplayName string   `json:"display_name"`
				Handles     []string `json:"handles"`
				Origin      string   `json:"origin"`
			}
			result := Result{OK: true, PersonDID: identity.PersonDID(key), DisplayName: name, Handles: handles, Origin: origin}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("person_did: %s\n", result.PersonDID)
				fmt.Printf("display_name: %s\n", result.DisplayName)
				fmt.Printf("origin: %s\n", result.Origin)
				fmt.Println("handles:")
				for _, h := range result.Handles {
					fmt.Printf("  %s\n", h)
				}
			}
		},
	}
	expandCmd.Flags().String("seed", "", "Raw phone number, email address, or existing label")

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a seed handle to exactly one person_did, using event-log evidence",
		Run: func(cmd *cobra.Command, args []string) {
			seed, _ := cmd.Flags().GetString("seed")
			if seed == "" {
				errExit("the --seed flag is required")
			}

			cfg, err := config.Load()
			if err != nil {
				errExit("failed to load config: %v", err)
			}
			reg, err := identity.OpenRegistry(cfg.PeopleRegistryPath)
			if err != nil {
				errExit("failed to open people registry: %v", err)
			}
			s, err := store.Open(cfg.EventStorePath)
			if err != nil {
				errExit("failed to open event store: %v", err)
			}
			defer s.Close()

			sources := contactSources(cfg, vcardPath, csvPath, useMacOS)
			personDID, evidence, err := identity.ResolvePerson(s, reg, seed, sources)
			if err != nil {
				var ambiguous *identity.AmbiguousPersonError
				if errors.As(err, &ambiguous) {
					if jsonOutput {
						printJSON(map[string]any{"ok": false, "message": ambiguous.Error(), "evidence": ambiguous.Evidence})
					} else {
						fmt.Fprintf(os.Stderr, "Error: %s\n", ambiguous.Error())
						for did, count := range ambiguous.Evidence {
							fmt.Fprintf(os.Stderr, "  %s: %d\n", did, count)
						}
					}
					os.Exit(1)
				}
				errExit("failed to resolve person: %v", err)
			}

			type Result struct {
				OK        bool           `json:"ok"`
				PersonDID string         `json:"person_did"`
				Evidence  map[string]int `json:"evidence"`
			}
			result := Result{OK: true, PersonDID: personDID, Evidence: evidence}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("person_did: %s\n", result.PersonDID)
				fmt.Println("evidence:")
				for did, count := range result.Evidence {
					fmt.Printf("  %s: %d\n", did, count)
				}
			}
		},
	}
	resolveCmd.Flags().String("seed", "", "Raw phone number, email address, or existing label")

	peopleCmd.PersistentFlags().StringVar(&vcardPath, "contacts-vcf", "", "Path to a vCard contacts export")
	peopleCmd.PersistentFlags().StringVar(&csvPath, "contacts-csv", "", "Path to a CSV contacts export")
	peopleCmd.PersistentFlags().BoolVar(&useMacOS, "use-macos-contacts", false, "Fall back to a macOS Contacts.app lookup")

	peopleCmd.AddCommand(expandCmd, resolveCmd)
	return peopleCmd
}

func contactSources(cfg *config.Config, vcardFlag, csvFlag string, useMacOSFlag bool) identity.ContactSources {
	vcard := vcardFlag
	if vcard == "" {
		vcard = cfg.Identity.VCardPath
	}
	csvPath := csvFlag
	if csvPath == "" {
		csvPath = cfg.Identity.CSVPath
	}
	var platform identity.PlatformLookup
	if useMacOSFlag || cfg.Identity.UseMacOS {
		platform = identity.MacOSContactsLookup
	}
	return identity.ContactSources{VCardPath: vcard, CSVPath: csvPath, Platform: platform}
}

// newIngestCmd wires the three read-only source collaborators: an
// iMessage/SMS chat.db, a directory of .eml files, and a call.db.
func newIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a raw source into the event store",
	}

	imessageCmd := &cobra.Command{
		Use:   "imessage",
		Short: "Ingest a chat.db into MESSAGE/REACTION/MEMBERSHIP events",
		Run: func(cmd *cobra.Command, args []string) {
			personDID, _ := cmd.Flags().GetString("person")
			path, _ := cmd.Flags().GetString("chat-db")
			if personDID == "" {
				errExit("the --person flag is required")
			}
			cfg, s, clock := openForIngest()
			defer s.Close()
			if path == "" {
				path = cfg.Sources.ChatDBPath
			}
			events, err := imessage.ReadChatDB(path, personDID, clock)
			if err != nil {
				errExit("ingest imessage: %v", err)
			}
			reportIngest(len(events), appendEvents(s, events))
		},
	}
	imessageCmd.Flags().String("person", "", "Target person_did (required)")
	imessageCmd.Flags().String("chat-db", "", "Path to chat.db (defaults to config sources.chat_db_path)")

	emailCmd := &cobra.Command{
		Use:   "email",
		Short: "Ingest a directory of .eml files into MESSAGE events",
		Run: func(cmd *cobra.Command, args []string) {
			personDID, _ := cmd.Flags().GetString("person")
			dir, _ := cmd.Flags().GetString("dir")
			if personDID == "" {
				errExit("the --person flag is required")
			}
			cfg, s, clock := openForIngest()
			defer s.Close()
			if dir == "" {
				dir = cfg.Sources.EmailDir
			}
			events, err := email.ReadDir(dir, personDID, clock)
			if err != nil {
				errExit("ingest email: %v", err)
			}
			reportIngest(len(events), appendEvents(s, events))
		},
	}
	emailCmd.Flags().String("person", "", "Target person_did (required)")
	emailCmd.Flags().String("dir", "", "Directory of .eml files (defaults to config sources.email_dir)")

	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Ingest a call.db into CALL events",
		Run: func(cmd *cobra.Command, args []string) {
			personDID, _ := cmd.Flags().GetString("person")
			path, _ := cmd.Flags().GetString("call-db")
			if personDID == "" {
				errExit("the --person flag is required")
			}
			cfg, s, clock := openForIngest()
			defer s.Close()
			if path == "" {
				path = cfg.Sources.CallDBPath
			}
			events, err := calls.ReadCallDB(path, personDID, clock)
			if err != nil {
				errExit("ingest calls: %v", err)
			}
			reportIngest(len(events), appendEvents(s, events))
		},
	}
	callsCmd.Flags().String("person", "", "Target person_did (required)")
	callsCmd.Flags().String("call-db", "", "Path to call.db (defaults to config sources.call_db_path)")

	ingestCmd.AddCommand(imessageCmd, emailCmd, callsCmd)
	return ingestCmd
}

func openForIngest() (*config.Config, *store.Store, *hlc.Clock) {
	cfg, err := config.Load()
	if err != nil {
		errExit("failed to load config: %v", err)
	}
	s, err := store.Open(cfg.EventStorePath)
	if err != nil {
		errExit("failed to open event store: %v", err)
	}
	return cfg, s, hlc.New(nodeID())
}

// appendEvents appends every event, logging (not aborting on) any
// individual append failure, and returns the count that succeeded.
func appendEvents(s *store.Store, events []event.Event) int {
	written := 0
	for _, ev := range events {
		if err := s.Append(ev); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to append event %s: %v\n", ev.EventID, err)
			continue
		}
		written++
	}
	return written
}

func reportIngest(read, written int) {
	type Result struct {
		OK            bool `json:"ok"`
		EventsRead    int  `json:"events_read"`
		EventsWritten int  `json:"events_written"`
	}
	result := Result{OK: true, EventsRead: read, EventsWritten: written}
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Printf("✓ Read %d events, wrote %d\n", read, written)
	}
}

// newViewCmd wires the conversation and voice-manuscript view
// renderers. The conversation view renders as Markdown (default) or
// JSONL; the voice manuscript is always Markdown and ignores --jsonl.
// Via-collapse and the voice context width fall back to the config's
// view section when not set on the command line.
func newViewCmd() *cobra.Command {
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Render a conversation or voice manuscript",
	}

	var showHandles, viaCollapse, asJSONL bool

	conversationCmd := &cobra.Command{
		Use:   "conversation",
		Short: "Render one person's merged conversation",
		Run: func(cmd *cobra.Command, args []string) {
			personDID, _ := cmd.Flags().GetString("person")
			chatID, _ := cmd.Flags().GetString("chat")
			listChats, _ := cmd.Flags().GetBool("list-chats")
			if personDID == "" {
				errExit("the --person flag is required")
			}

			cfg, err := config.Load()
			if err != nil {
				errExit("failed to load config: %v", err)
			}
			s, err := store.Open(cfg.EventStorePath)
			if err != nil {
				errExit("failed to open event store: %v", err)
			}
			defer s.Close()

			reg, err := identity.OpenRegistry(cfg.PeopleRegistryPath)
			if err != nil {
				errExit("failed to open people registry: %v", err)
			}
			resolve := registryResolver(reg)

			collapse := viaCollapse || cfg.View.ViaCollapse
			opts := views.DefaultConversationOptions()
			opts.ViaCollapse = collapse
			opts.ResolveDisplay = resolve

			items, err := views.GetConversation(s, personDID, opts)
			if err != nil {
				errExit("failed to load conversation: %v", err)
			}

			if listChats {
				chats := views.ListChats(items, resolve)
				if jsonOutput {
					printJSON(chats)
					return
				}
				for _, c := range chats {
					fmt.Printf("%s · %d msgs · %s\n", c.ConversationID, c.Count, joinStrings(c.Participants))
				}
				return
			}

			if chatID != "" {
				items = filterByConversation(items, chatID)
			}

			emitView(items, views.RenderMarkdownOptions{
				ShowHandles:       showHandles,
				HidePluginPayload: true,
				ViaCollapse:       collapse,
				ResolveDisplay:    resolve,
			}, asJSONL)
		},
	}
	conversationCmd.Flags().String("person", "", "Target person_did (required)")
	conversationCmd.Flags().String("chat", "", "Restrict output to one conversation_id")
	conversationCmd.Flags().Bool("list-chats", false, "List conversation rooms instead of rendering")

	voiceCmd := &cobra.Command{
		Use:   "voice",
		Short: "Render a counterparty's voice manuscript across every room",
		Run: func(cmd *cobra.Command, args []string) {
			personDID, _ := cmd.Flags().GetString("person")
			seed, _ := cmd.Flags().GetString("seed")
			quotesOnly, _ := cmd.Flags().GetBool("quotes-only")
			contextLines, _ := cmd.Flags().GetInt("context")
			if personDID == "" || seed == "" {
				errExit("both --person and --seed are required")
			}

			cfg, err := config.Load()
			if err != nil {
				errExit("failed to load config: %v", err)
			}
			s, err := store.Open(cfg.EventStorePath)
			if err != nil {
				errExit("failed to open event store: %v", err)
			}
			defer s.Close()

			reg, err := identity.OpenRegistry(cfg.PeopleRegistryPath)
			if err != nil {
				errExit("failed to open people registry: %v", err)
			}

			displayName, handles, _, err := identity.ExpandHandles(reg, seed, identity.ContactSources{})
			if err != nil {
				errExit("failed to expand seed: %v", err)
			}

			opts := views.DefaultVoiceOptions()
			opts.ViaCollapse = viaCollapse || cfg.View.ViaCollapse
			opts.ShowHandles = showHandles
			opts.QuotesOnly = quotesOnly
			opts.Context = cfg.View.Context
			if contextLines > 0 {
				opts.Context = contextLines
			}
			opts.ResolveDisplay = registryResolver(reg)

			manuscript, err := views.RenderVoiceManuscript(s, personDID, displayName, handles, opts)
			if err != nil {
				errExit("failed to render voice manuscript: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]string{"manuscript": manuscript})
			} else {
				fmt.Println(manuscript)
			}
		},
	}
	voiceCmd.Flags().String("person", "", "Target person_did (required)")
	voiceCmd.Flags().String("seed", "", "The counterparty's own handle, to identify authored utterances")
	voiceCmd.Flags().Bool("quotes-only", false, "Keep only authored utterances, no surrounding context")
	voiceCmd.Flags().Int("context", 0, "Lines of context around each authored utterance (default: config view.context, 2 if unset)")

	viewCmd.PersistentFlags().BoolVar(&showHandles, "show-handles", false, "Append the raw canonical handle to each speaker label")
	viewCmd.PersistentFlags().BoolVar(&viaCollapse, "via-collapse", false, "Collapse duplicate messages that arrived over multiple routes")
	viewCmd.PersistentFlags().BoolVar(&asJSONL, "jsonl", false, "Render the conversation view as JSONL instead of Markdown (the voice view ignores it)")

	viewCmd.AddCommand(conversationCmd, voiceCmd)
	return viewCmd
}

func filterByConversation(items []*merge.Item, conversationID string) []*merge.Item {
	var out []*merge.Item
	for _, it := range items {
		if it.ConversationID == conversationID {
			out = append(out, it)
		}
	}
	return out
}

func emitView(items []*merge.Item, opts views.RenderMarkdownOptions, asJSONL bool) {
	if asJSONL {
		out, err := render.JSONL(items)
		if err != nil {
			errExit("render jsonl: %v", err)
		}
		fmt.Print(out)
		return
	}
	fmt.Println(views.RenderMarkdown(items, opts))
}

func registryResolver(reg *identity.Registry) views.ResolveDisplay {
	return func(handle, eventDisplayName string) string {
		if _, person, ok := reg.Lookup(handle); ok {
			return person.Label
		}
		if eventDisplayName != "" {
			return eventDisplayName
		}
		return handle
	}
}

func nodeID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unify-cli"
}

func joinStrings(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func errExit(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "message": msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
