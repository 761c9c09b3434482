package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/buffer"
	"github.com/WhileEndless/go-rawexec/pkg/client"
	"github.com/WhileEndless/go-rawexec/pkg/config"
	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/request"
	"github.com/WhileEndless/go-rawexec/pkg/transport"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// options holds every flag value.
type options struct {
	// shared with connect
	headers    []string
	timeout    time.Duration
	configPath string
	insecure   bool
	tlsProfile string
	connectIP  string
	http1      bool
	http2      bool
	verbose    bool
	noColor    bool

	method        string
	data          string
	dataFile      string
	dataStdin     bool
	spool         bool
	maxRedirects  int
	noFollow      bool
	post301       bool
	post302       bool
	expectTimeout time.Duration
	requestID     bool
	jsonPath      string
	repeat        int
	rate          float64
	include       bool
	maxMemory     int64
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "rawexec [flags] <url>",
		Short: "Execute one HTTP request over a raw HTTP/1.1 or HTTP/2 stream",
		Long: `rawexec builds a request from a URL, optionally attaches a body, and runs it
with 100-continue gating and redirect following under one overall timeout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringArrayVarP(&o.headers, "header", "H", nil, "request header \"Name: value\" (repeatable)")
	pf.DurationVar(&o.timeout, "timeout", 0, "overall timeout including redirects (0 = none)")
	pf.StringVar(&o.configPath, "config", "", "YAML config file (default: search .rawexec.yaml)")
	pf.BoolVarP(&o.insecure, "insecure", "k", false, "skip TLS certificate verification")
	pf.StringVar(&o.tlsProfile, "tls-profile", "", "TLS profile: modern, secure or compatible")
	pf.StringVar(&o.connectIP, "connect-ip", "", "dial this address instead of resolving the host")
	pf.BoolVar(&o.http1, "http1.1", false, "force HTTP/1.1")
	pf.BoolVar(&o.http2, "http2", false, "force HTTP/2 (prior knowledge on cleartext)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "log execution steps to stderr")
	pf.BoolVar(&o.noColor, "no-color", false, "disable colored output")

	f := cmd.Flags()
	f.StringVarP(&o.method, "request", "X", "", "request method (default GET, POST with a body)")
	f.StringVarP(&o.data, "data", "d", "", "request body")
	f.StringVar(&o.dataFile, "data-file", "", "stream the request body from a file")
	f.BoolVar(&o.dataStdin, "data-stdin", false, "stream the request body from stdin in chunks")
	f.BoolVar(&o.spool, "spool", false, "spool stdin first so the body can be replayed on redirects")
	f.IntVar(&o.maxRedirects, "max-redirects", constants.DefaultMaxRedirects, "redirect budget")
	f.BoolVar(&o.noFollow, "no-follow", false, "return redirect responses instead of following them")
	f.BoolVar(&o.post301, "301-as-post", false, "keep POST and its body on 301")
	f.BoolVar(&o.post302, "302-as-post", false, "keep POST and its body on 302")
	f.DurationVar(&o.expectTimeout, "expect-timeout", 0, "100-continue wait (default 1s)")
	f.BoolVar(&o.requestID, "request-id", false, "send a random x-request-id header")
	f.StringVar(&o.jsonPath, "json-path", "", "print only this gjson path of a JSON body")
	f.IntVar(&o.repeat, "repeat", 1, "execute the request this many times")
	f.Float64Var(&o.rate, "rate", 0, "requests per second when repeating (0 = unpaced)")
	f.BoolVarP(&o.include, "include", "i", false, "print the status line and headers")
	f.Int64Var(&o.maxMemory, "max-memory", buffer.DefaultMemoryLimit, "spool limit before spilling to disk")

	cmd.AddCommand(newConnectCmd(o))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// config merges the config file with the flags that were set explicitly.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	file, err := config.Load(o.configPath)
	if err != nil {
		return nil, withExit(ExitConfigError, err)
	}

	flags := cmd.Flags()
	over := &config.Config{
		Timeout:               o.timeout,
		ExpectContinueTimeout: o.expectTimeout,
		TLSProfile:            o.tlsProfile,
		ConnectIP:             o.connectIP,
	}
	if flags.Changed("no-follow") {
		over.FollowRedirects = config.BoolPtr(!o.noFollow)
	}
	if flags.Changed("max-redirects") {
		over.MaxRedirects = config.IntPtr(o.maxRedirects)
	}
	if flags.Changed("301-as-post") {
		over.Treat301AsPost = config.BoolPtr(o.post301)
	}
	if flags.Changed("302-as-post") {
		over.Treat302AsPost = config.BoolPtr(o.post302)
	}
	if o.insecure {
		over.InsecureTLS = config.BoolPtr(true)
	}
	switch {
	case o.http1 && o.http2:
		return nil, withExit(ExitUsageError, errors.NewValidationError("--http1.1 and --http2 are exclusive"))
	case o.http1:
		over.Protocol = transport.ProtocolHTTP1
	case o.http2:
		over.Protocol = transport.ProtocolHTTP2
	}

	cfg := file.Merge(over)
	if err := cfg.Validate(); err != nil {
		return nil, withExit(ExitUsageError, err)
	}
	return cfg, nil
}

func (o *options) logger(w io.Writer) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (o *options) validate() error {
	sources := 0
	for _, set := range []bool{o.data != "", o.dataFile != "", o.dataStdin} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return errors.NewValidationError("only one of --data, --data-file and --data-stdin may be used")
	}
	if o.repeat < 1 {
		return errors.NewValidationError("--repeat must be at least 1")
	}
	if o.rate < 0 {
		return errors.NewValidationError("--rate cannot be negative")
	}
	return nil
}

// runner executes the request command.
type runner struct {
	o      *options
	cfg    *config.Config
	client *client.Client
	out    io.Writer
	errOut io.Writer
	stdin  io.Reader
	spool  *buffer.Buffer
}

func (o *options) run(cmd *cobra.Command, rawURL string) error {
	if err := o.validate(); err != nil {
		return withExit(ExitUsageError, err)
	}
	cfg, err := o.config(cmd)
	if err != nil {
		return err
	}
	if o.noColor {
		color.NoColor = true
	}

	r := &runner{
		o:      o,
		cfg:    cfg,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		stdin:  cmd.InOrStdin(),
	}
	r.client = client.New(client.Options{
		Transport: cfg.TransportConfig(),
		Logger:    o.logger(r.errOut),
	})

	if o.dataStdin && (o.spool || o.repeat > 1) {
		r.spool, err = buffer.Spool(r.stdin, o.maxMemory)
		if err != nil {
			return err
		}
		defer r.spool.Close()
	}

	var limiter *rate.Limiter
	if o.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.rate), 1)
	}

	ctx := cmd.Context()
	for i := 0; i < o.repeat; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := r.once(ctx, rawURL); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) once(ctx context.Context, rawURL string) error {
	req, cleanup, err := r.build(rawURL)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := r.client.Execute(ctx, req, r.cfg.Timeout)
	if err != nil {
		return err
	}
	defer resp.Close()

	if r.o.verbose {
		dim := color.New(color.Faint)
		for _, u := range resp.Redirects {
			dim.Fprintf(r.errOut, "-> %s\n", u)
		}
		if id := req.Header.Get("x-request-id"); id != "" {
			dim.Fprintf(r.errOut, "request id %s\n", id)
		}
	}
	if r.o.include {
		printHead(r.out, resp)
	}
	if err := r.printBody(resp); err != nil {
		return err
	}
	if r.o.verbose {
		color.New(color.Faint).Fprintln(r.errOut, resp.Metrics.String())
	}
	return nil
}

func (r *runner) build(rawURL string) (*request.Request, func(), error) {
	noop := func() {}
	hasBody := r.o.data != "" || r.o.dataFile != "" || r.o.dataStdin
	method := r.o.method
	if method == "" {
		method = "GET"
		if hasBody {
			method = "POST"
		}
	}

	req, err := request.NewRequest(method, rawURL)
	if err != nil {
		return nil, noop, err
	}
	r.cfg.Apply(req)
	if err := applyHeaders(req.Header, r.o.headers); err != nil {
		return nil, noop, withExit(ExitUsageError, err)
	}
	if r.o.requestID {
		req.Header.Set("x-request-id", uuid.NewString())
	}

	body, cleanup, err := r.body()
	if err != nil {
		return nil, noop, err
	}
	request.AttachBody(req, body)
	return req, cleanup, nil
}

func (r *runner) body() (request.Body, func(), error) {
	noop := func() {}
	switch {
	case r.o.data != "":
		return request.StringBody(r.o.data), noop, nil

	case r.o.dataFile != "":
		f, err := os.Open(r.o.dataFile)
		if err != nil {
			return request.NoBody, noop, withExit(ExitUsageError, errors.NewIOError("opening "+r.o.dataFile, err))
		}
		return request.ReaderBody(f), func() { f.Close() }, nil

	case r.o.dataStdin && r.spool != nil:
		rs, err := r.spool.Open()
		if err != nil {
			return request.NoBody, noop, err
		}
		return request.ReaderBody(rs), func() { rs.Close() }, nil

	case r.o.dataStdin:
		return request.FuncBody(pullFrom(r.stdin)), noop, nil
	}
	return request.NoBody, noop, nil
}

// pullFrom turns r into a chunked body source.
func pullFrom(r io.Reader) request.PullFunc {
	buf := make([]byte, constants.BodyCopyBuffer)
	return func(ctx context.Context) ([]byte, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			n, err := r.Read(buf)
			if n > 0 {
				return append([]byte(nil), buf[:n]...), nil
			}
			if err != nil {
				return nil, err
			}
		}
	}
}

// applyHeaders adds "Name: value" flags. host overrides :authority; user-agent
// replaces the default.
func applyHeaders(h *header.Header, flags []string) error {
	for _, raw := range flags {
		name, value, ok := strings.Cut(raw, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" || header.IsPseudo(name) {
			return errors.NewValidationError(fmt.Sprintf("invalid header %q, want \"Name: value\"", raw))
		}
		value = strings.TrimSpace(value)
		switch name {
		case "host":
			h.Set(header.Authority, value)
		case "user-agent":
			h.Set(name, value)
		default:
			h.Add(name, value)
		}
	}
	return nil
}

func statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return color.New(color.FgRed, color.Bold)
	case code >= 400:
		return color.New(color.FgYellow, color.Bold)
	case code >= 300:
		return color.New(color.FgCyan, color.Bold)
	}
	return color.New(color.FgGreen, color.Bold)
}

func printHead(w io.Writer, resp *client.Response) {
	proto := resp.Proto
	if proto == "" {
		proto = "HTTP"
	}
	statusColor(resp.StatusCode).Fprintf(w, "%s %d\n", proto, resp.StatusCode)
	resp.Header.Each(func(name, value string) error {
		if !header.IsPseudo(name) {
			fmt.Fprintf(w, "%s: %s\n", name, value)
		}
		return nil
	})
	fmt.Fprintln(w)
}

func (r *runner) printBody(resp *client.Response) error {
	if r.o.jsonPath == "" {
		if _, err := io.Copy(r.out, resp); err != nil {
			return errors.NewReceiveError("body", err)
		}
		return nil
	}

	spool, err := buffer.Spool(resp, r.o.maxMemory)
	if err != nil {
		return errors.NewReceiveError("body", err)
	}
	defer spool.Close()
	data, err := spool.Bytes()
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return errors.NewValidationError("response body is not JSON")
	}
	res := gjson.GetBytes(data, r.o.jsonPath)
	if !res.Exists() {
		return errors.NewValidationError(fmt.Sprintf("json path %q not found", r.o.jsonPath))
	}
	fmt.Fprintln(r.out, res.String())
	return nil
}
