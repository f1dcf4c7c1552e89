package reportpdf

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hilife/servicereport-backend/pkg/config"
)

type fakeSession struct {
	pdf     []byte
	err     error
	closed  int
	gotHTML string
	gotReq  *proto.PagePrintToPDF
}

func (f *fakeSession) Print(html string, req *proto.PagePrintToPDF) ([]byte, error) {
	f.gotHTML = html
	f.gotReq = req
	return f.pdf, f.err
}

func (f *fakeSession) Close() { f.closed++ }

func generatorWith(s *fakeSession, launchErr error) *Generator {
	return &Generator{
		cfg: config.RendererConfig{Scale: 0.98, MarginMM: 10},
		launch: func(context.Context, config.RendererConfig) (session, error) {
			if launchErr != nil {
				return nil, launchErr
			}
			return s, nil
		},
	}
}

func TestGenerateReturnsPDFAndClosesSession(t *testing.T) {
	s := &fakeSession{pdf: []byte("%PDF-1.7")}
	pdf, err := generatorWith(s, nil).Generate(context.Background(), []byte("<html></html>"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(pdf) != "%PDF-1.7" {
		t.Fatalf("unexpected pdf %q", pdf)
	}
	if s.closed != 1 {
		t.Fatalf("expected session closed once, got %d", s.closed)
	}
	if s.gotHTML != "<html></html>" {
		t.Fatalf("unexpected html %q", s.gotHTML)
	}
}

func TestGenerateClosesSessionOnPrintError(t *testing.T) {
	s := &fakeSession{err: errors.New("target crashed")}
	if _, err := generatorWith(s, nil).Generate(context.Background(), []byte("<html></html>")); err == nil {
		t.Fatal("expected error")
	}
	if s.closed != 1 {
		t.Fatalf("expected session closed after failure, got %d", s.closed)
	}
}

func TestGenerateRejectsEmptyOutput(t *testing.T) {
	s := &fakeSession{}
	if _, err := generatorWith(s, nil).Generate(context.Background(), []byte("<p>x</p>")); err == nil {
		t.Fatal("expected error for empty pdf")
	}
}

func TestGenerateLaunchFailure(t *testing.T) {
	if _, err := generatorWith(nil, errors.New("no chromium")).Generate(context.Background(), []byte("<p>x</p>")); err == nil {
		t.Fatal("expected launch error")
	}
	if _, err := generatorWith(&fakeSession{}, nil).Generate(context.Background(), nil); err == nil {
		t.Fatal("expected empty html error")
	}
}

func TestPrintRequestIsA4WithTenMillimetreMargins(t *testing.T) {
	req := PrintRequest(config.RendererConfig{Scale: 0.98, MarginMM: 10})

	if !req.PrintBackground || !req.PreferCSSPageSize {
		t.Fatal("expected background printing and css page size")
	}
	if *req.PaperWidth != 8.27 || *req.PaperHeight != 11.69 {
		t.Fatalf("unexpected paper %vx%v", *req.PaperWidth, *req.PaperHeight)
	}
	if *req.Scale != 0.98 {
		t.Fatalf("unexpected scale %v", *req.Scale)
	}
	for _, m := range []*float64{req.MarginTop, req.MarginBottom, req.MarginLeft, req.MarginRight} {
		if math.Abs(*m-10/25.4) > 1e-9 {
			t.Fatalf("unexpected margin %v", *m)
		}
	}
}

func TestPrintRequestDefaultsScale(t *testing.T) {
	req := PrintRequest(config.RendererConfig{})
	if *req.Scale != 0.98 {
		t.Fatalf("expected default scale, got %v", *req.Scale)
	}
}
