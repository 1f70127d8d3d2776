package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/resqfreeze/internal/backend"
	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/config"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/notify"
	"github.com/kalambet/resqfreeze/internal/ui"
)

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the container's freshness verdict and notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		mc, err := newMonitorClient()
		if err != nil {
			return err
		}
		resp, err := mc.get(cmd.Context(), "/state")
		if err == nil {
			var state ui.StateResponse
			if err := decodeJSON(resp, &state); err != nil {
				return err
			}
			if asJSON {
				return writeIndented(out, state)
			}
			printVerdict(out, state.Status.Verdict, state.Status.Snapshot)
			printStatus(out, "Quick replies", "%s", joinReplies(state.Status.QuickReplies))
			printStatus(out, "Notifications", "%d unread", state.Status.Notifications.Unread)
			printStatus(out, "Chat", "%d messages (%s)", len(state.Session.Messages), state.Session.State)
			return nil
		}

		// Monitor not running: classify straight from the backend.
		printStep("monitor not reachable, reading from backend")
		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		snap, err := bc.LatestSensor(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching latest reading: %w", err)
		}
		preferLabel := true
		if cfg, err := config.Load(); err == nil {
			preferLabel = cfg.Monitor.UseServerLabel
		}
		verdict := freshness.Evaluate(snap, preferLabel)
		if asJSON {
			return writeIndented(out, map[string]any{"verdict": verdict, "snapshot": snap})
		}
		printVerdict(out, verdict, snap)
		printStatus(out, "Quick replies", "%s", joinReplies(freshness.QuickReplies(verdict.Category)))
		return nil
	},
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a reading locally without contacting any server",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var s freshness.Snapshot
		for name, dst := range map[string]**float64{
			"voc":         &s.VOC,
			"temperature": &s.Temperature,
			"humidity":    &s.Humidity,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetFloat64(name)
				*dst = &v
			}
		}
		s.Status, _ = flags.GetString("status")
		asJSON, _ := flags.GetBool("json")

		verdict := freshness.Evaluate(s, s.Status != "")
		out := cmd.OutOrStdout()
		if asJSON {
			return writeIndented(out, struct {
				freshness.Verdict
				Rule     string `json:"rule,omitempty"`
				Headline string `json:"headline"`
			}{verdict, freshness.MatchedRule(s.VOC, s.Temperature, s.Humidity), verdict.Headline()})
		}
		printVerdict(out, verdict, s)
		if rule := freshness.MatchedRule(s.VOC, s.Temperature, s.Humidity); rule != "" {
			printStatus(out, "Rule", "%s", rule)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().Float64("voc", 0, "VOC reading")
	classifyCmd.Flags().Float64("temperature", 0, "temperature in °C")
	classifyCmd.Flags().Float64("humidity", 0, "relative humidity in %")
	classifyCmd.Flags().String("status", "", "server status label; when set it overrides the rules")
	classifyCmd.Flags().Bool("json", false, "print the verdict as JSON")
}

// --- reading ---

var readingCmd = &cobra.Command{
	Use:   "reading",
	Short: "Submit or list sensor readings",
}

var readingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Post a sensor reading to the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		for _, name := range []string{"temperature", "humidity", "voc"} {
			if !flags.Changed(name) {
				return fmt.Errorf("--%s is required", name)
			}
		}
		var r backend.Reading
		r.Temperature, _ = flags.GetFloat64("temperature")
		r.Humidity, _ = flags.GetFloat64("humidity")
		r.VOC, _ = flags.GetFloat64("voc")

		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		res, err := bc.PostReading(cmd.Context(), r)
		if err != nil {
			return err
		}
		printSuccess("Stored reading %s (%s)", res.ID, res.Status)
		return nil
	},
}

var readingHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent readings, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		points, err := bc.SensorHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(points) == 0 {
			fmt.Fprintln(out, "No readings.")
			return nil
		}
		for _, p := range points {
			fmt.Fprintf(out, "%s  %8s  %6s  VOC %-6s %s\n", p.Time,
				freshness.FormatTemperature(p.Suhu), freshness.FormatHumidity(p.Kelembapan),
				freshness.FormatVOC(p.VOC), p.Status)
		}
		return nil
	},
}

func init() {
	readingAddCmd.Flags().Float64("temperature", 0, "temperature in °C")
	readingAddCmd.Flags().Float64("humidity", 0, "relative humidity in %")
	readingAddCmd.Flags().Float64("voc", 0, "VOC reading")
	readingHistoryCmd.Flags().Int("limit", 12, "number of readings")
	readingCmd.AddCommand(readingAddCmd)
	readingCmd.AddCommand(readingHistoryCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Chef Sayuran",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a message through the monitor's chat session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		mc, err := newMonitorClient()
		if err != nil {
			return err
		}
		before, err := currentTranscript(cmd, mc)
		if err != nil {
			return err
		}

		resp, err := mc.post(cmd.Context(), "/chat", map[string]string{"message": text})
		if err != nil {
			return err
		}
		var view struct {
			Messages []chat.Message `json:"messages"`
		}
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, m := range view.Messages[min(before, len(view.Messages)):] {
			if m.Sender == chat.SenderBot && !m.Composing {
				printMessage(out, m)
			}
		}
		return nil
	},
}

func currentTranscript(cmd *cobra.Command, mc *apiClient) (int, error) {
	resp, err := mc.get(cmd.Context(), "/transcript")
	if err != nil {
		return 0, err
	}
	var view struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := decodeJSON(resp, &view); err != nil {
		return 0, err
	}
	return len(view.Messages), nil
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		msgs, err := bc.ChatHistory(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages.")
			return nil
		}
		for _, m := range msgs {
			printMessage(out, m)
		}
		return nil
	},
}

var chatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the chat history (two-phase: request, then confirm)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the whole chat history. Use --confirm to proceed.")
			return nil
		}

		mc, err := newMonitorClient()
		if err != nil {
			return err
		}
		resp, err := mc.post(cmd.Context(), "/chat/clear", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		resp, err = mc.post(cmd.Context(), "/chat/clear/confirm", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Chat history cleared")
		return nil
	},
}

func init() {
	chatClearCmd.Flags().Bool("confirm", false, "confirm deleting the chat history")
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatClearCmd)
}

// --- notifications ---

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List freshness notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		events, err := bc.Notifications(cmd.Context())
		if err != nil {
			return err
		}
		feed := notify.Aggregate(events, time.Now())

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeIndented(cmd.OutOrStdout(), feed)
		}
		printFeed(cmd.OutOrStdout(), feed)
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBackendClient()
		if err != nil {
			return err
		}
		if err := bc.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Marked %s as read", args[0])
		return nil
	},
}

func init() {
	notificationsCmd.Flags().Bool("json", false, "print the feed as JSON")
	notificationsCmd.AddCommand(notificationsReadCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the container profile (vegetable, owner contact)",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackendAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), profile)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newBackendAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/profile", map[string]any{key: value})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n",
				colorize(colorBold, k.Key), k.Value, colorize(colorDim, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (secrets go to the secrets file)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
