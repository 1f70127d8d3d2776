package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/notify"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// categoryColor is the badge colour of a freshness category.
func categoryColor(c freshness.Category) string {
	switch c {
	case freshness.Segar:
		return colorGreen
	case freshness.MulaiLayu:
		return colorYellow
	case freshness.HampirBusuk, freshness.Busuk:
		return colorRed
	default:
		return colorDim
	}
}

func printVerdict(w io.Writer, v freshness.Verdict, s freshness.Snapshot) {
	badge := colorize(colorBold+categoryColor(v.Category), v.Category.String())
	fmt.Fprintf(w, "%s  %s\n", badge, v.Headline())
	printStatus(w, "Temperature", "%s", freshness.FormatTemperature(s.Temperature))
	printStatus(w, "Humidity", "%s", freshness.FormatHumidity(s.Humidity))
	printStatus(w, "VOC", "%s", freshness.FormatVOC(s.VOC))
	printStatus(w, "TTI", "%s", freshness.FormatTTI(v.TTI))
	printStatus(w, "Days left", "%s", v.DaysDisplay)
	printStatus(w, "Advice", "%s", v.Recommendation)
}

func printMessage(w io.Writer, m chat.Message) {
	who := colorize(colorCyan, "you")
	if m.Sender == chat.SenderBot {
		who = colorize(colorGreen, "chef")
	}
	stamp := colorize(colorDim, m.CreatedAt.Local().Format("15:04"))

	if m.Type == chat.KindRecipe {
		fmt.Fprintf(w, "%s %s: %s\n", stamp, who, colorize(colorBold, m.RecipeName))
		for _, ing := range m.Ingredients {
			fmt.Fprintf(w, "      - %s\n", ing)
		}
		for i, step := range m.Steps {
			fmt.Fprintf(w, "      %d. %s\n", i+1, step)
		}
		return
	}
	content := m.Content
	if m.Composing {
		content = colorize(colorDim, content)
	}
	fmt.Fprintf(w, "%s %s: %s\n", stamp, who, content)
}

func printFeed(w io.Writer, feed notify.Feed) {
	if len(feed.Items) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}
	for _, n := range feed.Items {
		marker := " "
		if !n.IsRead {
			marker = colorize(colorYellow, "●")
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", marker, colorize(colorBold, n.Title), colorize(colorDim, n.Time), n.Message)
		if n.ID != "" {
			fmt.Fprintf(w, "    %s\n", colorize(colorDim, "id "+n.ID))
		}
	}
	fmt.Fprintf(w, "%d unread\n", feed.Unread)
}

func joinReplies(replies []string) string {
	quoted := make([]string, len(replies))
	for i, r := range replies {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return strings.Join(quoted, ", ")
}
