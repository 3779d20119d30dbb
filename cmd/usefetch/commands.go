package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nozzle/usefetch"
	"github.com/nozzle/usefetch/internal/config"
	"github.com/nozzle/usefetch/internal/json"
	"github.com/nozzle/usefetch/internal/logger"
)

type rootFlags struct {
	configPath string
	baseURL    string
	headers    []string
	logLevel   string
}

// runtime is everything a subcommand needs to execute requests
type runtime struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger
	client *usefetch.Client
	out    io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "usefetch",
		Short:         "Execute JSON HTTP requests with shared base URL and headers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "base URL joined with relative request URLs")
	root.PersistentFlags().StringArrayVarP(&flags.headers, "header", "H", nil, `header sent with every request ("Key: Value")`)
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	setup := func(cmd *cobra.Command) (*runtime, error) {
		return newRuntime(cmd.Context(), flags, out)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		root.AddCommand(newSimpleCommand(method, setup))
	}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		root.AddCommand(newBodyCommand(method, setup))
	}
	root.AddCommand(newUploadCommand(setup), newWatchCommand(setup))

	return root
}

func newRuntime(ctx context.Context, flags rootFlags, out io.Writer) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	for _, h := range flags.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	log := logger.New(cfg.LogLevel, nil)

	clientOpts := []usefetch.ClientOption{
		usefetch.ClientWithLogger(log),
		usefetch.ClientWithTimeout(cfg.Timeout),
	}
	if cfg.Tracing {
		clientOpts = append(clientOpts, usefetch.ClientWithTracing())
	}
	cl, err := usefetch.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	ctx, _ = usefetch.Provide(ctx, cfg.Fetch())
	return &runtime{ctx: ctx, cfg: cfg, logger: log, client: cl, out: out}, nil
}

func (rt *runtime) hook(opts usefetch.Options) (*usefetch.Hook[any], error) {
	return usefetch.New[any](rt.ctx, rt.client, opts, usefetch.WithLogger(rt.logger))
}

// finish prints the outcome of an execution
func (rt *runtime) finish(st usefetch.State[any]) error {
	defer func() { _ = rt.logger.Sync() }()
	if st.Err != nil {
		return st.Err
	}
	if st.Data == nil {
		return errors.New("request was not executed")
	}
	b, err := json.MarshalIndent(*st.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(rt.out, string(b))
	return err
}

type setupFunc func(cmd *cobra.Command) (*runtime, error)

func newSimpleCommand(method string, setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   strings.ToLower(method) + " URL",
		Short: "Execute a " + method + " request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			h, err := rt.hook(usefetch.Options{})
			if err != nil {
				return err
			}
			defer h.Close()

			if method == http.MethodDelete {
				h.Remove(rt.ctx, args[0], nil)
			} else {
				h.Get(rt.ctx, args[0], nil)
			}
			return rt.finish(h.State())
		},
	}
}

func newBodyCommand(method string, setup setupFunc) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " URL",
		Short: "Execute a " + method + " request with a JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			h, err := rt.hook(usefetch.Options{})
			if err != nil {
				return err
			}
			defer h.Close()

			h.Execute(rt.ctx, usefetch.Options{URL: args[0], Method: method, Body: body})
			return rt.finish(h.State())
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

func newUploadCommand(setup setupFunc) *cobra.Command {
	var field, method string
	cmd := &cobra.Command{
		Use:   "upload URL FILE...",
		Short: "Upload files as multipart/form-data",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]usefetch.File, 0, len(args)-1)
			for _, path := range args[1:] {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, usefetch.File{Name: filepath.Base(path), Data: f})
			}

			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			h, err := rt.hook(usefetch.Options{})
			if err != nil {
				return err
			}
			defer h.Close()

			h.Upload(rt.ctx, args[0], files, field, nil, strings.ToUpper(method))
			return rt.finish(h.State())
		},
	}
	cmd.Flags().StringVar(&field, "field", "file", "form field name for the files")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodPost, "request method")
	return cmd
}

// newWatchCommand auto-fetches URL and prints the first settled state
func newWatchCommand(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "watch URL",
		Short: "Auto-fetch URL, honoring the configured debounce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}

			settled := make(chan usefetch.State[any], 1)
			h, err := rt.hook(usefetch.Options{URL: args[0], AutoFetch: true, Debounce: rt.cfg.Debounce})
			if err != nil {
				return err
			}
			defer h.Close()

			unsubscribe := h.Subscribe(func(st usefetch.State[any]) {
				if st.IsLoading {
					rt.logger.Debug("loading", zap.String("url", args[0]))
					return
				}
				select {
				case settled <- st:
				default:
				}
			})
			defer unsubscribe()

			switch st := h.State(); st.Status {
			case usefetch.StatusIdle:
				return usefetch.ErrNoURL
			case usefetch.StatusSucceeded, usefetch.StatusFailed:
				return rt.finish(st)
			}

			select {
			case st := <-settled:
				return rt.finish(st)
			case <-rt.ctx.Done():
				return rt.ctx.Err()
			}
		},
	}
}
