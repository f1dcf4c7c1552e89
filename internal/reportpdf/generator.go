// Package reportpdf prints rendered report HTML to A4 PDF with headless Chromium.
package reportpdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
	mmPerInch      = 25.4
)

// waitImagesJS resolves once every <img> has loaded or failed.
const waitImagesJS = `() => Promise.all(Array.from(document.images)
  .filter(img => !img.complete)
  .map(img => new Promise(resolve => { img.onload = img.onerror = resolve; })))`

// session is one browser process owning one page.
type session interface {
	Print(html string, req *proto.PagePrintToPDF) ([]byte, error)
	Close()
}

type launchFunc func(ctx context.Context, cfg config.RendererConfig) (session, error)

// Generator converts HTML to PDF. Each call launches and tears down its own browser.
type Generator struct {
	cfg    config.RendererConfig
	logg   *logger.Logger
	launch launchFunc
}

func NewGenerator(cfg config.RendererConfig, logg *logger.Logger) *Generator {
	return &Generator{cfg: cfg, logg: logg, launch: launchChromium}
}

// Generate prints html and returns the PDF bytes.
func (g *Generator) Generate(ctx context.Context, html []byte) ([]byte, error) {
	if len(html) == 0 {
		return nil, errors.New("html document is empty")
	}
	s, err := g.launch(ctx, g.cfg)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer s.Close()

	pdf, err := s.Print(string(html), PrintRequest(g.cfg))
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, errors.New("browser returned an empty pdf")
	}
	if g.logg != nil {
		g.logg.Debug(g.logg.WithField(ctx, "pdf_bytes", len(pdf)), "pdf generated")
	}
	return pdf, nil
}

// PrintRequest is the CDP print configuration: A4, backgrounds on, uniform margins.
func PrintRequest(cfg config.RendererConfig) *proto.PagePrintToPDF {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 0.98
	}
	marginMM := cfg.MarginMM
	if marginMM < 0 {
		marginMM = 0
	}
	margin := marginMM / mmPerInch
	width := a4WidthInches
	height := a4HeightInches
	return &proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		Scale:             &scale,
		PaperWidth:        &width,
		PaperHeight:       &height,
		MarginTop:         &margin,
		MarginBottom:      &margin,
		MarginLeft:        &margin,
		MarginRight:       &margin,
	}
}

type chromiumSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func launchChromium(ctx context.Context, cfg config.RendererConfig) (session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Set(flags.Flag("hide-scrollbars")).
		Set(flags.Flag("disable-web-security")).
		Set(flags.Flag("disable-dev-shm-usage"))
	if bin := strings.TrimSpace(cfg.ChromiumBin); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, err
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return &chromiumSession{launcher: l, browser: browser}, nil
}

func (s *chromiumSession) Print(html string, req *proto.PagePrintToPDF) ([]byte, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("setting content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for load: %w", err)
	}
	if _, err := page.Eval(waitImagesJS); err != nil {
		return nil, fmt.Errorf("waiting for images: %w", err)
	}

	stream, err := page.PDF(req)
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading pdf stream: %w", err)
	}
	return pdf, nil
}

func (s *chromiumSession) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}
