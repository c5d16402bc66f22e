// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Display is what a front end should render for the current snapshot.
type Display struct {
	Working bool // blocking indicator during the upload round trip

	FileLabel      string
	OptionsVisible bool

	ProgressVisible bool
	ProgressPercent int
	ProgressText    string

	PreviewVisible bool
	PageLabel      string
	PrevEnabled    bool
	NextEnabled    bool
	ZoomLabel      string
	Scale          float64
	// Asset handles of the current page; empty while loading or after a failed fetch.
	OriginalAsset  string
	ConvertedAsset string
	PreviewPending int

	DownloadEnabled bool
	DownloadedPath  string

	ErrorVisible bool
	ErrorMessage string

	// Alert is a transient intake message that does not change the session.
	Alert string
}

func defaultDisplay(t texts) Display {
	return Display{ZoomLabel: t.zoom(DefaultZoom), Scale: 1}
}

const (
	msgFileLabel      = "%s (%.2f MB)"
	msgWrongType      = "Please select a PDF file"
	msgTooLarge       = "File exceeds the size limit: %.2f MB (maximum %.2f MB)"
	msgNoFile         = "Please select a file first"
	msgSubmitFailed   = "Conversion failed"
	msgPreparing      = "Preparing..."
	msgConverting     = "Converting..."
	msgConvertingPct  = "Converting... %d%%"
	msgCompleted      = "Conversion complete!"
	msgConversionErr  = "An error occurred during conversion"
	msgNoPages        = "The converted document has no pages"
	msgPollGaveUp     = "Status check failed %d times in a row"
	msgDownloadFailed = "Download failed: %s"
	msgPageLabel      = "%d / %d"
	msgZoomLabel      = "%d%%"
)

var supportedLocales = []language.Tag{language.English, language.SimplifiedChinese}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	zh := language.SimplifiedChinese
	for key, msg := range map[string]string{
		msgFileLabel:      "%s（%.2f MB）",
		msgWrongType:      "请选择 PDF 文件",
		msgTooLarge:       "文件大小超过限制！当前文件: %.2f MB，最大限制: %.2f MB",
		msgNoFile:         "请先选择文件",
		msgSubmitFailed:   "转换失败",
		msgPreparing:      "准备中...",
		msgConverting:     "转换中...",
		msgConvertingPct:  "转换中... %d%%",
		msgCompleted:      "转换完成！",
		msgConversionErr:  "转换过程中发生错误",
		msgNoPages:        "转换结果没有页面",
		msgPollGaveUp:     "状态检查连续失败 %d 次",
		msgDownloadFailed: "下载失败：%s",
	} {
		_ = message.SetString(zh, key, msg)
	}
}

// texts renders user-facing strings in one locale.
type texts struct {
	p *message.Printer
}

func newTexts(locale string) texts {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, _ := localeMatcher.Match(parsed)
			tag = supportedLocales[idx]
		}
	}
	return texts{p: message.NewPrinter(tag)}
}

func (t texts) fileLabel(f File) string {
	return t.p.Sprintf(msgFileLabel, f.Name, f.SizeMB())
}

func (t texts) preparing() string { return t.p.Sprintf(msgPreparing) }
func (t texts) converting() string { return t.p.Sprintf(msgConverting) }
func (t texts) completed() string { return t.p.Sprintf(msgCompleted) }

func (t texts) convertingPct(pct int) string {
	return t.p.Sprintf(msgConvertingPct, pct)
}

func (t texts) page(cur, total int) string {
	return t.p.Sprintf(msgPageLabel, cur, total)
}

func (t texts) zoom(pct int) string {
	return t.p.Sprintf(msgZoomLabel, pct)
}

func (t texts) validation(err *ValidationError) string {
	if err.Kind == TooLarge {
		return t.p.Sprintf(msgTooLarge, err.ActualMB, err.LimitMB)
	}
	return t.p.Sprintf(msgWrongType)
}

func (t texts) noFile() string { return t.p.Sprintf(msgNoFile) }
func (t texts) submitFailed() string { return t.p.Sprintf(msgSubmitFailed) }
func (t texts) conversionFailed() string {
	return t.p.Sprintf(msgConversionErr)
}
func (t texts) noPages() string { return t.p.Sprintf(msgNoPages) }

func (t texts) pollGaveUp(n int) string {
	return t.p.Sprintf(msgPollGaveUp, n)
}

func (t texts) downloadFailed(detail string) string {
	return t.p.Sprintf(msgDownloadFailed, detail)
}

// orFallback returns the server-supplied message verbatim, or fallback.
func orFallback(detail, fallback string) string {
	if detail != "" {
		return detail
	}
	return fallback
}
