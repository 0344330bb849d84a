package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/session"
)

// Values is the input of compose: the adopted signature and a value per
// field ID. YAML and JSON are both accepted.
type Values struct {
	Signature *SignatureValues `yaml:"signature"`
	Fields    map[string]any   `yaml:"fields"`
}

// SignatureValues describes the signature adopted for the run. Image is a
// path to an uploaded signature image.
type SignatureValues struct {
	Name     string `yaml:"name"`
	Initials string `yaml:"initials"`
	Font     string `yaml:"font"`
	Color    string `yaml:"color"`
	Image    string `yaml:"image"`
}

// adoptedMarker asks for the adopted signature in a signature-like field
const adoptedMarker = "adopted"

type composeOptions struct {
	valuesPath  string
	outDir      string
	pageImages  []string
	scale       float64
	maxFileSize int64
}

func newComposeCmd() *cobra.Command {
	opts := composeOptions{}

	cmd := &cobra.Command{
		Use:   "compose <template>",
		Short: "Fill a template from a values file and write the signed PDF",
		Example: `  pdfsign compose lease.yaml --values lease-values.yaml --out-dir signed/
  pdfsign compose scan.yaml --values v.json --page-image 1=page1.png --scale 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.valuesPath, "values", "", "YAML or JSON file with the signature and field values")
	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", ".", "directory the signed PDF is written to")
	cmd.Flags().StringArrayVar(&opts.pageImages, "page-image", nil, "page bitmap as PAGE=PATH, repeatable")
	cmd.Flags().Float64Var(&opts.scale, "scale", 1, "pixels per PDF point of the page bitmaps")
	cmd.Flags().Int64Var(&opts.maxFileSize, "max-file-size", 100*1024*1024, "maximum template size in bytes")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func runCompose(cmd *cobra.Command, templatePath string, opts composeOptions) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	values, err := readValues(opts.valuesPath)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(templatePath)
	if err != nil {
		return fmt.Errorf("failed to resolve template path: %w", err)
	}
	if err := os.MkdirAll(opts.outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	svc, err := pdf.NewService(pdf.Options{
		Directory:   filepath.Dir(abs),
		MaxFileSize: opts.maxFileSize,
		Channels:    []export.DeliveryChannel{&export.DownloadChannel{Dir: opts.outDir}},
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	opened, err := svc.OpenTemplate(ctx, pdf.OpenTemplateRequest{Path: filepath.Base(abs)})
	if err != nil {
		return fmt.Errorf("failed to open template: %w", err)
	}
	id := opened.SessionID
	defer func() { _, _ = svc.CloseSession(pdf.CloseSessionRequest{SessionID: id}) }()

	if values.Signature != nil {
		req, err := adoptRequest(id, values.Signature)
		if err != nil {
			return err
		}
		if _, err := svc.AdoptSignature(req); err != nil {
			return fmt.Errorf("failed to adopt signature: %w", err)
		}
	}

	if err := applyPageImages(svc, id, opts.pageImages, opts.scale); err != nil {
		return err
	}

	types := make(map[string]form.FieldType, len(opened.Fields))
	for _, f := range opened.Fields {
		types[f.ID] = f.Type
	}
	if err := fillFields(svc, id, types, values.Fields); err != nil {
		return err
	}

	res, err := svc.Finalize(ctx, pdf.FinalizeRequest{SessionID: id})
	if err != nil {
		return fmt.Errorf("failed to finalize: %w", err)
	}

	logger.Debug("composed", "strategy", res.Strategy, "rendered", len(res.Rendered), "degraded", res.Degraded)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", res.Delivery.Location)
	if len(res.Degraded) > 0 {
		fmt.Fprintf(out, "rendered as vector marks: %s\n", strings.Join(res.Degraded, ", "))
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "skipped %s: %s\n", s.FieldID, s.Reason)
	}
	return nil
}

func readValues(path string) (*Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse values %s: %w", path, err)
	}
	return &v, nil
}

func adoptRequest(id string, sv *SignatureValues) (pdf.AdoptSignatureRequest, error) {
	req := pdf.AdoptSignatureRequest{
		SessionID:  id,
		Name:       sv.Name,
		Initials:   sv.Initials,
		FontFamily: sv.Font,
		Color:      sv.Color,
	}
	if sv.Image != "" {
		data, err := os.ReadFile(sv.Image)
		if err != nil {
			return req, fmt.Errorf("failed to read signature image: %w", err)
		}
		req.ImageBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return req, nil
}

func applyPageImages(svc *pdf.Service, id string, specs []string, scale float64) error {
	for _, spec := range specs {
		pageStr, path, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid --page-image %q: want PAGE=PATH", spec)
		}
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return fmt.Errorf("invalid --page-image %q: page must be an integer", spec)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read page image: %w", err)
		}
		if _, err := svc.SetPageImage(pdf.SetPageImageRequest{
			SessionID:   id,
			Page:        page,
			ImageBase64: base64.StdEncoding.EncodeToString(data),
			Scale:       scale,
		}); err != nil {
			return fmt.Errorf("failed to set page %d image: %w", page, err)
		}
	}
	return nil
}

// fillFields applies values in field ID order so failures are reproducible
func fillFields(svc *pdf.Service, id string, types map[string]form.FieldType, fields map[string]any) error {
	ids := make([]string, 0, len(fields))
	for fieldID := range fields {
		ids = append(ids, fieldID)
	}
	sort.Strings(ids)

	var errs []error
	for _, fieldID := range ids {
		raw := valueString(fields[fieldID])
		t, ok := types[fieldID]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown field %q", fieldID))
			continue
		}

		var err error
		switch {
		case t == form.FieldTypeRadio:
			if truthy(raw) {
				_, err = svc.SelectRadio(pdf.SelectRadioRequest{SessionID: id, FieldID: fieldID})
			}
		case t == form.FieldTypeCheckbox:
			_, err = svc.FillField(pdf.FillFieldRequest{SessionID: id, FieldID: fieldID, Value: raw, Mode: string(session.FillCheck)})
		case t.IsSignatureLike():
			req := pdf.FillFieldRequest{SessionID: id, FieldID: fieldID, Mode: string(session.FillAdoptedSignature)}
			if raw != "" && !strings.EqualFold(raw, adoptedMarker) {
				req.Mode = string(session.FillTypedSignature)
				req.Value = raw
			}
			_, err = svc.FillField(req)
		default:
			_, err = svc.FillField(pdf.FillFieldRequest{SessionID: id, FieldID: fieldID, Value: raw, Mode: string(session.FillText)})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", fieldID, err))
		}
	}
	return errors.Join(errs...)
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no", "off", "unchecked":
		return false
	}
	return true
}
