package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/semmidev/dumpvault/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Subject is the one-line summary used as the email subject.
func Subject(result *domain.BackupResult) string {
	if result.Success {
		return fmt.Sprintf("✅ Backup Successful: %s", result.Database)
	}
	return fmt.Sprintf("❌ Backup Failed: %s", result.Database)
}

// Format renders the notification body.
func Format(result *domain.BackupResult) string {
	var b strings.Builder

	if result.Success {
		b.WriteString("✅ Backup Completed Successfully\n\n")
	} else {
		b.WriteString("❌ Backup Failed\n\n")
	}

	fmt.Fprintf(&b, "📊 Database: %s\n", result.Database)
	fmt.Fprintf(&b, "🕒 Time: %s\n", result.FinishedAt.Format(timeLayout))

	if result.Artifact != nil {
		fmt.Fprintf(&b, "📦 File: %s\n", result.Artifact.Filename)
		fmt.Fprintf(&b, "💾 Size: %.2f MB\n", result.Artifact.SizeMB())
	}
	fmt.Fprintf(&b, "⏱️ Duration: %.2f seconds\n", result.Duration.Seconds())

	if len(result.Uploads) > 0 {
		b.WriteString("\n📍 Storage Locations:\n")
		names := make([]string, 0, len(result.Uploads))
		for name := range result.Uploads {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			icon := "✅"
			if !result.Uploads[name] {
				icon = "❌"
			}
			fmt.Fprintf(&b, "  %s %s\n", icon, strings.ToUpper(name))
		}
	}

	if result.Success {
		if result.Evicted > 0 {
			fmt.Fprintf(&b, "\n🧹 Old backups removed: %d\n", result.Evicted)
		}
		return b.String()
	}

	if result.FailedStage != "" {
		fmt.Fprintf(&b, "\n📋 Failed stage: %s\n", result.FailedStage)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "\n⚠️ Error:\n%s\n", result.Error)
	}
	b.WriteString("\n🔍 Please check the logs for more information.")

	return b.String()
}
