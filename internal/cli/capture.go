package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cslcapital/portsync/pkg/auth"
	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/session"
)

var (
	captureTimeout time.Duration
	capturePrint   bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a session with a visible browser",
	Long: `Open the dashboard login page in a visible browser window and wait
for you to log in by hand, one-time code included. Once the dashboard shows
authenticated content, the session is saved for headless runs to reuse.

Use this on a desktop machine, then copy the session file (or the printed
bundle) to the host that runs the pipeline.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().DurationVar(&captureTimeout, "timeout", 10*time.Minute, "how long to wait for the manual login")
	captureCmd.Flags().BoolVar(&capturePrint, "print", false, "also print the encoded session bundle")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := browser.NewManager(browser.Config{
		Headless:    false,
		NoSandbox:   cfg.Browser.NoSandbox,
		ChromePath:  cfg.Browser.ChromePath,
		UserDataDir: cfg.Browser.UserDataDir,
	}, log.Zerolog())
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	page, err := b.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	loginURL := cfg.Dashboard.BaseURL + cfg.Dashboard.LoginPath
	if err := page.Navigate(loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "A browser window is open at", loginURL)
	fmt.Fprintln(out, "Log in by hand, complete the one-time code if asked.")
	fmt.Fprintln(out, "Waiting for the dashboard to show authenticated content...")

	classifier := auth.NewClassifier(auth.Markers{
		Login:         cfg.Dashboard.Markers.Login,
		SecondFactor:  cfg.Dashboard.Markers.SecondFactor,
		Authenticated: cfg.Dashboard.Markers.Authenticated,
		LoginFailed:   cfg.Dashboard.Markers.LoginFailed,
	})

	deadline := time.NewTimer(captureTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("capture cancelled: %w", ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("no authenticated page seen within %s", captureTimeout)
		case <-ticker.C:
		}

		source, err := page.HTML()
		if err != nil {
			// The page reloads during login; a transient read failure is
			// expected.
			continue
		}
		if !classifier.LoggedIn(source) {
			continue
		}

		cookies, err := browser.HarvestCookies(page)
		if err != nil {
			return fmt.Errorf("harvest cookies: %w", err)
		}
		sess := &session.Session{Cookies: cookies, IssuedAt: time.Now().UTC()}

		fs := session.NewFileStore(cfg.Dashboard.SessionFile)
		if err := fs.Save(sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		fmt.Fprintf(out, "Session captured: %d cookies saved to %s\n", len(cookies), fs.Path())
		if capturePrint {
			bundle, err := session.Encode(sess)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, bundle)
		}
		return nil
	}
}
