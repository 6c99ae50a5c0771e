package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/rtrelay"
	"github.com/codewandler/rtrelay/audio"
	"github.com/codewandler/rtrelay/relay"
	"github.com/codewandler/rtrelay/transcript"
)

func chatCmd() *cobra.Command {
	var (
		gatewayURL string
		token      string
		secret     string
		pcmFile    string
		pcmRate    int
		latencyMS  int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a running gateway",
		Long: `Interactive realtime client. Type a message to send it as text,
/start to stream the microphone, /stop to stop streaming and /quit to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if latencyMS <= 0 {
				return fmt.Errorf("--latency must be positive, got %d", latencyMS)
			}
			window := time.Duration(latencyMS) * time.Millisecond

			logger := newLogger()
			loadDotEnv(logger)

			opts := append(hardwareOptions(window),
				rtrelay.WithLogger(logger),
				rtrelay.WithLatency(latencyMS),
			)
			if gatewayURL != "" {
				opts = append(opts, rtrelay.WithGatewayURL(gatewayURL))
			}
			switch {
			case token != "":
				opts = append(opts, rtrelay.WithToken(token))
			case secret != "":
				opts = append(opts, rtrelay.WithTokenSource(mintingTokenSource([]byte(secret))))
			}
			if pcmFile != "" {
				device := audio.NewFileDevice(pcmFile, pcmRate, window).WithLogger(logger)
				opts = append(opts, rtrelay.WithCaptureDevice(device), rtrelay.WithDeviceRate(pcmRate))
			}

			client := rtrelay.New(opts...)
			defer client.Close()

			return runChat(ctx, client)
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "url", "", "gateway websocket url (default $"+rtrelay.GatewayEnvVarName+" or "+rtrelay.DefaultGatewayURL+")")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $"+rtrelay.TokenEnvVarName+")")
	cmd.Flags().StringVar(&secret, "secret", "", "mint a short lived token with this HMAC secret instead of --token")
	cmd.Flags().StringVar(&pcmFile, "pcm-file", "", "stream a raw PCM16 mono file instead of the microphone")
	cmd.Flags().IntVar(&pcmRate, "pcm-rate", audio.SampleRate, "sample rate of --pcm-file")
	cmd.Flags().IntVar(&latencyMS, "latency", 100, "capture window in milliseconds")

	return cmd
}

func mintingTokenSource(secret []byte) rtrelay.TokenSource {
	return func(context.Context) (string, error) {
		return relay.IssueToken(secret, "rtrelay-chat", "", 5*time.Minute)
	}
}

// transcriptPrinter writes new message content to stdout as it arrives.
type transcriptPrinter struct {
	mu      sync.Mutex
	printed map[int64]int
	last    int64
}

func newTranscriptPrinter() *transcriptPrinter {
	return &transcriptPrinter{printed: make(map[int64]int), last: -1}
}

func (p *transcriptPrinter) print(m transcript.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m.Sender == transcript.SenderUser && m.Kind == transcript.KindText {
		// already visible at the prompt
		p.printed[m.ID] = len(m.Content)
		return
	}

	n := p.printed[m.ID]
	if n >= len(m.Content) {
		return
	}
	if p.last != m.ID {
		fmt.Printf("\n\033[1m%s:\033[0m ", m.Sender)
		p.last = m.ID
	}
	fmt.Print(m.Content[n:])
	p.printed[m.ID] = len(m.Content)
}

func runChat(ctx context.Context, client *rtrelay.Client) error {
	printer := newTranscriptPrinter()
	client.OnMessage(printer.print)
	client.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "\n\033[31mError: %v\033[0m\n", err)
	})

	fmt.Println("\033[1mrtrelay chat\033[0m")
	fmt.Println("Type a message and press Enter. /start, /stop, /quit. Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(os.Stdin)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	for {
		fmt.Print("\n\033[36m> \033[0m")

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		switch line {
		case "":
			continue
		case "/quit":
			// let the current answer finish playing
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = client.WaitIdle(waitCtx)
			cancel()
			return nil
		case "/start":
			if err := client.StartRecordingWithRetry(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
				continue
			}
			fmt.Println("recording, /stop to end")
		case "/stop":
			if err := client.StopRecording(); err != nil {
				fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
			}
			fmt.Println("stopped")
		default:
			if err := client.SendText(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
			}
		}
	}
}
