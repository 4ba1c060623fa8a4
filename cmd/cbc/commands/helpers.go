package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fivetwenty-io/cbc-client/pkg/cbcclient"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"
	Masked       = "***"
	Yes          = "yes"
	No           = "no"

	// Output formats.
	OutputFormatJSON  = constants.OutputFormatJSON
	OutputFormatYAML  = constants.OutputFormatYAML
	OutputFormatTable = constants.OutputFormatTable

	defaultIndent = 2
	timeLayout    = "2006-01-02 15:04:05"
)

// Common static errors used throughout the commands package.
var (
	ErrInvalidCriteria  = errors.New("criteria must be of the form field=value[,value...]")
	ErrInvalidSort      = errors.New("sort must be of the form field[:asc|desc]")
	ErrInvalidRange     = errors.New("range must be of the form field:start:end:bucket_size")
	ErrJobFailed        = errors.New("job did not complete")
	ErrEmptyToken       = errors.New("token must not be empty")
	ErrMissingSelection = errors.New("pass ids or --query/--criteria/--exclude")
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the CLI logger. Output goes to stderr so it never mixes
// with json or yaml results.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	})

	return logger
}

// ConfigureLogging applies the --verbose flag to the CLI logger.
func ConfigureLogging(verbose bool) {
	if verbose {
		Logger().SetLevel(logrus.DebugLevel)

		return
	}

	Logger().SetLevel(logrus.WarnLevel)
}

// CreateAPI builds a platform API handle from the global flags.
func CreateAPI(ctx context.Context, opts ...platform.Option) (*platform.API, error) {
	config := &cbc.Config{
		Profile:        viper.GetString("profile"),
		CredentialFile: viper.GetString("credentials-file"),
		HTTPTimeout:    viper.GetDuration("http-timeout"),
		Debug:          viper.GetBool("verbose"),
		Logger:         cbc.NewLogrusLogger(Logger()),
	}

	api, err := cbcclient.New(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return api, nil
}

// withAPI runs fn with a fresh API handle and closes it afterwards.
func withAPI(cmd *cobra.Command, fn func(ctx context.Context, api *platform.API) error, opts ...platform.Option) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	api, err := CreateAPI(ctx, opts...)
	if err != nil {
		return err
	}

	defer func() { _ = api.Close() }()

	return fn(ctx, api)
}

// outputFormat returns the validated --output value.
func outputFormat() (string, error) {
	output := strings.ToLower(viper.GetString("output"))
	switch output {
	case "", OutputFormatTable:
		return OutputFormatTable, nil
	case OutputFormatJSON, OutputFormatYAML:
		return output, nil
	default:
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidOutputFormat, output)
	}
}

// StandardJSONRenderer writes data as indented JSON.
func StandardJSONRenderer[T any](w io.Writer, data T) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding data to JSON: %w", err)
	}

	return nil
}

// StandardYAMLRenderer writes data as YAML.
func StandardYAMLRenderer[T any](w io.Writer, data T) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(defaultIndent)

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding data to YAML: %w", err)
	}

	return encoder.Close()
}

// render writes data as json or yaml, or calls table for the default format.
func render[T any](w io.Writer, data T, table func(*tablewriter.Table)) error {
	output, err := outputFormat()
	if err != nil {
		return err
	}

	switch output {
	case OutputFormatJSON:
		return StandardJSONRenderer(w, data)
	case OutputFormatYAML:
		return StandardYAMLRenderer(w, data)
	default:
		writer := tablewriter.NewWriter(w)
		table(writer)

		err = writer.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

type documented interface {
	Fields() cbc.Fields
}

// documents returns the cached documents of models for json and yaml output.
func documents[T documented](models []T) []cbc.Fields {
	docs := make([]cbc.Fields, 0, len(models))
	for _, model := range models {
		docs = append(docs, model.Fields())
	}

	return docs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}

	return t.Local().Format(timeLayout)
}

func orNA(value string) string {
	if value == "" {
		return NotAvailable
	}

	return value
}

func yesNo(value bool) string {
	if value {
		return Yes
	}

	return No
}

// searchFlags are the filter flags shared by every search command.
type searchFlags struct {
	query      string
	criteria   []string
	exclusions []string
	sort       string
	rows       int
}

func (f *searchFlags) register(cmd *cobra.Command) {
	f.registerFilters(cmd)
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort field with optional :asc or :desc")
	cmd.Flags().IntVar(&f.rows, "rows", constants.DefaultPageSize, "maximum number of results (0 for all)")
}

// registerFilters adds only the flags that select documents.
func (f *searchFlags) registerFilters(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "search query in Lucene syntax")
	cmd.Flags().StringArrayVar(&f.criteria, "criteria", nil, "field=value[,value...] criteria (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclusions, "exclude", nil, "field=value[,value...] exclusions (repeatable)")
}

func (f *searchFlags) selective() bool {
	return f.query != "" || len(f.criteria) > 0 || len(f.exclusions) > 0
}

// filterable is the builder surface shared by Query and AsyncQuery.
type filterable[Q any] interface {
	Where(query string) Q
	AddCriteria(field string, values ...any) Q
	AddExclusions(field string, values ...any) Q
	SortBy(field string, direction cbc.SortDirection) Q
	SetRows(rows int) Q
}

// applySearchFlags copies the parsed flags onto query.
func applySearchFlags[Q filterable[Q]](query Q, flags *searchFlags) (Q, error) {
	query = query.Where(flags.query)

	for _, raw := range flags.criteria {
		field, values, err := parseCriteria(raw)
		if err != nil {
			return query, err
		}

		query = query.AddCriteria(field, values...)
	}

	for _, raw := range flags.exclusions {
		field, values, err := parseCriteria(raw)
		if err != nil {
			return query, err
		}

		query = query.AddExclusions(field, values...)
	}

	if flags.sort != "" {
		field, direction, err := parseSort(flags.sort)
		if err != nil {
			return query, err
		}

		query = query.SortBy(field, direction)
	}

	if flags.rows > 0 {
		query = query.SetRows(flags.rows)
	}

	return query, nil
}

// parseCriteria splits "field=a,b" into the field and its values.
func parseCriteria(raw string) (string, []any, error) {
	field, list, found := strings.Cut(raw, "=")

	field = strings.TrimSpace(field)
	if !found || field == "" || strings.TrimSpace(list) == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidCriteria, raw)
	}

	var values []any

	for _, value := range strings.Split(list, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			values = append(values, value)
		}
	}

	if len(values) == 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidCriteria, raw)
	}

	return field, values, nil
}

// parseSort splits "field:desc" into a field and direction.
func parseSort(raw string) (string, cbc.SortDirection, error) {
	field, direction, found := strings.Cut(raw, ":")

	field = strings.TrimSpace(field)
	if field == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
	}

	if !found {
		return field, cbc.SortAsc, nil
	}

	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case string(cbc.SortAsc):
		return field, cbc.SortAsc, nil
	case string(cbc.SortDesc):
		return field, cbc.SortDesc, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
	}
}

// renderFacetTerms prints one row per bucket.
func renderFacetTerms(w io.Writer, terms []cbc.FacetTerm) error {
	return render(w, terms, func(table *tablewriter.Table) {
		table.Header("Field", "Value", "Total")

		for _, term := range terms {
			for _, value := range term.Values {
				name := value.Name
				if name == "" {
					name = value.ID
				}

				_ = table.Append(term.Field, name, fmt.Sprintf("%d", value.Total))
			}
		}
	})
}
