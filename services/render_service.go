package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/eventra/certhub/models"
	"github.com/eventra/certhub/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Calibration corrects for coordinate and font-metric mismatches between
// the editor's canvas units and the rendering engine.
type Calibration struct {
	ScaleX        float64
	ScaleY        float64
	OffsetX       float64
	OffsetY       float64
	BaselineRatio float64
}

func DefaultCalibration() Calibration {
	return Calibration{ScaleX: 1, ScaleY: 1, OffsetX: 0, OffsetY: 0, BaselineRatio: 0.35}
}

// DrawOp is one resolved placement on the page, in final page coordinates.
type DrawOp struct {
	ElementID  string
	Kind       string
	X          float64
	Y          float64
	Anchor     string
	Text       string
	FontFamily string
	FontSize   float64
	FontWeight string
	Color      string
	ImagePath  string
	Width      float64
	Height     float64
	Layer      int
}

// anchorFor is the single source of truth for the align→anchor mapping.
// The anchor is always derived, never stored, so the two cannot drift.
func anchorFor(align string) string {
	switch align {
	case "center":
		return "middle"
	case "right":
		return "end"
	default:
		return "start"
	}
}

func renderElement(el models.TemplateElement, bound map[string]string, cal Calibration) (DrawOp, error) {
	op := DrawOp{
		ElementID: el.ID,
		Kind:      el.Type,
		X:         el.Position.X*cal.ScaleX + cal.OffsetX,
		Y:         el.Position.Y*cal.ScaleY + cal.OffsetY,
		Layer:     el.Layer,
	}

	style := el.Style
	if style == nil {
		style = &ElementStyleDefaults
	}

	switch el.Type {
	case models.ElementStaticText, models.ElementDynamicText:
		op.Anchor = anchorFor(style.Align)
		op.FontFamily = style.FontFamily
		if op.FontFamily == "" {
			op.FontFamily = ElementStyleDefaults.FontFamily
		}
		op.FontSize = style.FontSize
		if op.FontSize <= 0 {
			op.FontSize = ElementStyleDefaults.FontSize
		}
		op.FontWeight = style.FontWeight
		if op.FontWeight == "" {
			op.FontWeight = ElementStyleDefaults.FontWeight
		}
		op.Color = style.Color
		if op.Color == "" {
			op.Color = ElementStyleDefaults.Color
		}
		// Baseline correction: the canvas y marks the visual top of the
		// text, the engine anchors on the baseline.
		op.Y += op.FontSize * cal.BaselineRatio * cal.ScaleY

		if el.Type == models.ElementStaticText {
			op.Text = el.Content
		} else {
			key := el.Placeholder
			if key == "" {
				key = el.Content
			}
			value, ok := bound[key]
			if !ok {
				if !el.Optional {
					return DrawOp{}, &MissingBindingError{ElementID: el.ID, Key: key}
				}
				value = ""
			}
			op.Text = value
		}
	case models.ElementImage:
		op.ImagePath = el.SourceAsset
		if el.Dimensions != nil {
			op.Width = el.Dimensions.Width
			op.Height = el.Dimensions.Height
		}
		op.Width *= cal.ScaleX
		op.Height *= cal.ScaleY
	default:
		return DrawOp{}, fmt.Errorf("unknown element type %q", el.Type)
	}

	return op, nil
}

var ElementStyleDefaults = models.ElementStyle{
	FontFamily: "Helvetica",
	FontSize:   16,
	FontWeight: "normal",
	Color:      "#000000",
}

// CertificateRenderer composes one certificate into PDF bytes. Output is
// deterministic for identical (record, template, calibration) inputs; the
// issue date is derived from the record's creation time, never from the
// wall clock.
type CertificateRenderer struct {
	db     *gorm.DB
	engine PDFEngine
	store  *storage.ArtifactStore
	cal    Calibration
	tmpl   *template.Template
}

func NewCertificateRenderer(db *gorm.DB, engine PDFEngine, store *storage.ArtifactStore, cal Calibration, templatePath string) (*CertificateRenderer, error) {
	tmpl, err := template.ParseFiles(templatePath)
	if err != nil {
		return nil, err
	}
	return &CertificateRenderer{db: db, engine: engine, store: store, cal: cal, tmpl: tmpl}, nil
}

func bindData(record *models.CertificateRecord) map[string]string {
	bound := map[string]string{
		"recipient_name": record.RecipientName,
		"recipient_type": record.RecipientType,
		"unique_code":    record.UniqueCode,
		"issue_date":     record.CreatedAt.Format("2 January 2006"),
	}
	if record.SerialNumber != nil {
		bound["serial_number"] = *record.SerialNumber
	}
	for k, v := range record.Ownership.BoundFields() {
		bound[k] = v
	}
	return bound
}

func (r *CertificateRenderer) Generate(ctx context.Context, certificateID uuid.UUID) ([]byte, error) {
	var record models.CertificateRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", certificateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}

	var tpl models.TemplateDefinition
	if err := r.db.WithContext(ctx).First(&tpl, "id = ?", record.TemplateID).Error; err != nil {
		return nil, fmt.Errorf("load template %s: %w", record.TemplateID, err)
	}
	if err := tpl.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	html, err := r.composeHTML(&record, &tpl.Layout)
	if err != nil {
		return nil, err
	}

	return r.engine.RenderHTML(ctx, html)
}

func (r *CertificateRenderer) composeHTML(record *models.CertificateRecord, layout *models.TemplateLayout) (string, error) {
	background, err := r.store.Read(r.store.AssetPath(layout.Background.AssetPath))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateAssetMissing, layout.Background.AssetPath)
	}

	bound := bindData(record)

	// Ascending layer order; the stable sort keeps array position as the
	// tiebreak for equal layers.
	elements := make([]models.TemplateElement, len(layout.Elements))
	copy(elements, layout.Elements)
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].Layer < elements[j].Layer })

	view := pageView{
		Width:         fmtCoord(layout.Canvas.Width * r.cal.ScaleX),
		Height:        fmtCoord(layout.Canvas.Height * r.cal.ScaleY),
		BackgroundURI: dataURI(layout.Background.AssetPath, background),
	}

	for _, el := range elements {
		op, err := renderElement(el, bound, r.cal)
		if err != nil {
			return "", &RenderError{ElementID: el.ID, Err: err}
		}
		ov, err := r.opView(op)
		if err != nil {
			return "", &RenderError{ElementID: el.ID, Err: err}
		}
		view.Ops = append(view.Ops, ov)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type pageView struct {
	Width         string
	Height        string
	BackgroundURI template.URL
	Ops           []opView
}

type opView struct {
	IsImage  bool
	Left     string
	Top      string
	Anchor   string
	Style    template.CSS
	Text     string
	ImageURI template.URL
	Width    string
	Height   string
}

func (r *CertificateRenderer) opView(op DrawOp) (opView, error) {
	ov := opView{
		Left:   fmtCoord(op.X),
		Top:    fmtCoord(op.Y),
		Anchor: op.Anchor,
	}
	if op.Kind == models.ElementImage {
		data, err := r.store.Read(r.store.AssetPath(op.ImagePath))
		if err != nil {
			return opView{}, fmt.Errorf("image asset %s unreadable", op.ImagePath)
		}
		ov.IsImage = true
		ov.ImageURI = dataURI(op.ImagePath, data)
		ov.Width = fmtCoord(op.Width)
		ov.Height = fmtCoord(op.Height)
		return ov, nil
	}

	ov.Text = op.Text
	ov.Style = template.CSS(fmt.Sprintf(
		"font-family:%s;font-size:%spx;font-weight:%s;color:%s",
		op.FontFamily, fmtCoord(op.FontSize), op.FontWeight, op.Color,
	))
	return ov, nil
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func dataURI(path string, data []byte) template.URL {
	mime := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mime = "image/png"
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".svg":
		mime = "image/svg+xml"
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
