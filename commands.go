package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/any-hub/stowage/internal/download"
	"github.com/any-hub/stowage/internal/fetch"
	"github.com/any-hub/stowage/internal/host"
	"github.com/any-hub/stowage/internal/logging"
	"github.com/any-hub/stowage/internal/offlicense"
	"github.com/any-hub/stowage/internal/server"
	"github.com/any-hub/stowage/internal/stowage"
	"github.com/any-hub/stowage/internal/version"
)

func newPathCommand(st *cliState) *cobra.Command {
	var (
		ext         string
		platform    string
		arch        string
		compression string
	)
	cmd := &cobra.Command{
		Use:   "path <project@version>",
		Short: "Print where an artifact is stowed",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := stowage.ParsePackage(args[0])
			if err != nil {
				return usageError{err}
			}

			var s stowage.Stowage
			if ext != "" {
				s = stowage.Source{Pkg: pkg, Extname: ext}
			} else {
				bottle := stowage.Bottle{Pkg: pkg, Compression: stowage.Compression(compression)}
				if platform != "" || arch != "" {
					bottle.Host = &host.Host{Platform: host.Platform(platform), Arch: host.Arch(arch)}
					if !bottle.Host.Known() {
						st.logger.WithFields(logging.StowageFields(string(stowage.TypeBottle), pkg.Project, pkg.Version.String())).
							WithField("host", bottle.Host.String()).Warn("unsupported_host")
					}
				}
				s = bottle
			}

			p, err := st.layout().Path(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdOut, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "", "源码包扩展名（如 .tar.gz），指定后按源码包计算")
	cmd.Flags().StringVar(&platform, "platform", "", "bottle 平台，缺省为当前主机")
	cmd.Flags().StringVar(&arch, "arch", "", "bottle 架构，缺省为当前主机")
	cmd.Flags().StringVar(&compression, "compression", string(stowage.CompressionGz), "bottle 压缩格式：gz 或 xz")
	return cmd
}

func newListCommand(st *cliState) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stowed artifacts",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "text", "json", "yaml":
			default:
				return usageError{fmt.Errorf("unknown output format %q", output)}
			}

			inv, err := st.layout().Scan(cmd.Context())
			if err != nil {
				return err
			}
			if len(inv.Unrecognized) > 0 {
				st.logger.WithFields(logrus.Fields{
					"action":       "ls",
					"www":          st.cfg.Global.WWW(),
					"unrecognized": len(inv.Unrecognized),
				}).Debug("skipped_unrecognized_entries")
			}
			return writeRecords(output, stowage.Records(inv.Stowed))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "输出格式：text、json 或 yaml")
	return cmd
}

func writeRecords(format string, records []stowage.Record) error {
	switch format {
	case "json":
		enc := json.NewEncoder(stdOut)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(stdOut)
		defer enc.Close()
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(stdOut, 0, 4, 2, ' ', 0)
	for _, rec := range records {
		variant := rec.Extname
		if rec.Type == stowage.TypeBottle {
			variant = rec.Platform + "/" + rec.Arch + " " + rec.Compression
		}
		fmt.Fprintf(w, "%s\t%s@%s\t%s\t%s\n", rec.Type, rec.Project, rec.Version, variant, rec.Path)
	}
	return w.Flush()
}

func newFetchCommand(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download bottles, sources or scripts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "bottle <project@version>...",
		Short: "Fetch bottles for the current host into the www directory",
		Args:  minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]fetch.Request, 0, len(args))
			for _, arg := range args {
				pkg, err := stowage.ParsePackage(arg)
				if err != nil {
					return usageError{err}
				}
				reqs = append(reqs, fetch.BottleRequest{Pkg: pkg})
			}
			f, err := st.fetcher()
			if err != nil {
				return err
			}
			results, err := f.FetchAll(cmd.Context(), reqs)
			if err != nil {
				return err
			}
			for _, res := range results {
				fmt.Fprintln(stdOut, res.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "src <project@version> <url>",
		Short: "Fetch a source archive into the www directory",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := stowage.ParsePackage(args[0])
			if err != nil {
				return usageError{err}
			}
			src, err := parseAbsoluteURL(args[1])
			if err != nil {
				return usageError{err}
			}
			f, err := st.fetcher()
			if err != nil {
				return err
			}
			res, err := f.Fetch(cmd.Context(), fetch.SourceRequest{Pkg: pkg, URL: src})
			if err != nil {
				return err
			}
			fmt.Fprintln(stdOut, res.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "script <url>",
		Short: "Fetch a script and write it to stdout",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseAbsoluteURL(args[0])
			if err != nil {
				return usageError{err}
			}
			f, err := st.fetcher()
			if err != nil {
				return err
			}
			res, err := f.Fetch(cmd.Context(), fetch.ScriptRequest{URL: src})
			if err != nil {
				return err
			}
			_, err = stdOut.Write(res.Body)
			return err
		},
	})
	return cmd
}

// fetcher 按 配置 → 对象存储解析器 → 下载客户端 → Fetcher 的顺序组装。
func (st *cliState) fetcher() (*fetch.Fetcher, error) {
	resolver, err := offlicense.NewResolver(st.cfg.Global.DistURL)
	if err != nil {
		return nil, err
	}
	client := download.NewClient(server.NewUpstreamClient(st.cfg), st.logger)
	return fetch.New(fetch.Options{
		Layout:     st.layout(),
		Resolver:   resolver,
		Downloader: client,
		Logger:     st.logger,
		Workers:    st.cfg.Global.Workers,
	})
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported url %q: expected http(s)://host/...", raw)
	}
	return u, nil
}

func newServeCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only inventory API",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			port := st.cfg.Global.ListenPort
			app, err := server.NewApp(server.AppOptions{
				Logger:     st.logger,
				Inventory:  st.layout(),
				ListenPort: port,
			})
			if err != nil {
				return err
			}

			fields := logging.BaseFields("listen", st.configPath)
			fields["port"] = port
			fields["www"] = st.cfg.Global.WWW()
			fields["version"] = version.Full()
			st.logger.WithFields(fields).Info("Fiber 服务启动")

			go func() {
				<-cmd.Context().Done()
				_ = app.Shutdown()
			}()
			return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion()
		},
	}
}
