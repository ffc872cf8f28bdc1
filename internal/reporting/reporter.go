// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// Reporter writes finished scan sessions to an output.
type Reporter interface {
	// Write adds one session snapshot to the report.
	Write(snap *schemas.SessionSnapshot) error
	// Close finalizes the report and closes the underlying writer.
	Close() error
}

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath, or to stdout when
// the path is empty or "stdout".
func New(format, outputPath, toolVersion string) (Reporter, error) {
	if format != FormatJSON && format != FormatSARIF {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatSARIF {
		return NewSARIFReporter(writer, toolVersion), nil
	}
	return NewJSONReporter(writer, toolVersion), nil
}

// NewWriter creates a reporter for format on top of w. Closing the reporter
// finalizes the document but leaves w open.
func NewWriter(format string, w io.Writer, toolVersion string) (Reporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONReporter(&nopWriteCloser{w}, toolVersion), nil
	case FormatSARIF:
		return NewSARIFReporter(&nopWriteCloser{w}, toolVersion), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
