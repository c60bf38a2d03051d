package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/stowage/internal/host"
	"github.com/any-hub/stowage/internal/stowage"
)

// Inventory 是 HTTP 层依赖的最小缓存接口，stowage.Layout 即满足。
type Inventory interface {
	Scan(ctx context.Context) (*stowage.Inventory, error)
	Path(s stowage.Stowage) (string, error)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Inventory  Inventory
	ListenPort int
}

const contextKeyRequestID = "_stowage_request_id"

// NewApp builds the Fiber application exposing the stowage inventory.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Inventory == nil {
		return nil, errors.New("inventory is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/-/stowed", listHandler(opts))
	app.Get("/-/path", pathHandler(opts))

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		fields := logrus.Fields{
			"action":     "http",
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"request_id": reqID,
			"elapsed_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			logger.WithFields(fields).WithError(err).Warn("request_failed")
		} else {
			logger.WithFields(fields).Debug("request_complete")
		}
		return err
	}
}

func listHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		inv, err := opts.Inventory.Scan(ctx)
		if err != nil {
			opts.Logger.WithError(err).WithFields(logrus.Fields{
				"action":     "ls",
				"request_id": RequestID(c),
			}).Error("stowage_scan_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stowage_unreadable"})
		}

		typeFilter := stowage.Type(strings.TrimSpace(c.Query("type")))
		projectFilter := strings.TrimSpace(c.Query("project"))
		records := make([]stowage.Record, 0, len(inv.Stowed))
		for _, rec := range stowage.Records(inv.Stowed) {
			if typeFilter != "" && rec.Type != typeFilter {
				continue
			}
			if projectFilter != "" && rec.Project != projectFilter {
				continue
			}
			records = append(records, rec)
		}

		return c.JSON(fiber.Map{
			"stowed":       records,
			"unrecognized": len(inv.Unrecognized),
		})
	}
}

func pathHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		s, err := descriptorFromQuery(c)
		if err == nil {
			var p string
			if p, err = opts.Inventory.Path(s); err == nil {
				return c.JSON(fiber.Map{"path": p})
			}
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "invalid_descriptor",
			"detail": err.Error(),
		})
	}
}

// descriptorFromQuery 根据查询参数构造描述符：带 ext 时为源码包，否则为 bottle。
func descriptorFromQuery(c fiber.Ctx) (stowage.Stowage, error) {
	project := strings.TrimSpace(c.Query("project"))
	rawVersion := strings.TrimSpace(c.Query("version"))
	if project == "" || rawVersion == "" {
		return nil, fmt.Errorf("%w: project and version are required", stowage.ErrInvalidDescriptor)
	}
	version, err := semver.StrictNewVersion(rawVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stowage.ErrInvalidDescriptor, err)
	}
	pkg := stowage.Package{Project: project, Version: version}

	if ext := c.Query("ext"); ext != "" {
		return stowage.Source{Pkg: pkg, Extname: ext}, nil
	}

	bottle := stowage.Bottle{Pkg: pkg, Compression: stowage.Compression(c.Query("compression", string(stowage.CompressionGz)))}
	platform, arch := c.Query("platform"), c.Query("arch")
	if platform != "" || arch != "" {
		bottle.Host = &host.Host{Platform: host.Platform(platform), Arch: host.Arch(arch)}
	}
	return bottle, nil
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
