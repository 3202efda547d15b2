package interactive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"imgcluster/internal/core"
)

// ErrNoInput is returned when input ends before a valid answer is given
var ErrNoInput = errors.New("no input")

// Handler collects clustering parameters from a terminal
type Handler struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewHandlerWithIO creates a handler reading answers from in and writing prompts to out
func NewHandlerWithIO(in io.Reader, out io.Writer) *Handler {
	return &Handler{
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

// Answers are the values collected by Collect
type Answers struct {
	Directory string
	Params    core.RunParams
}

// Collect asks for the image directory, eps and minSamples in turn. An
// empty answer to eps or minSamples keeps the value from defaults.
func (h *Handler) Collect(defaults core.RunParams) (*Answers, error) {
	fmt.Fprintln(h.out, "\n🖼️  Image clustering setup")
	fmt.Fprintln(h.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	dir, err := h.Directory()
	if err != nil {
		return nil, err
	}

	eps, err := h.Eps(defaults.Eps)
	if err != nil {
		return nil, err
	}

	minSamples, err := h.MinSamples(defaults.MinSamples)
	if err != nil {
		return nil, err
	}

	params := defaults
	params.Eps = eps
	params.MinSamples = minSamples

	return &Answers{Directory: dir, Params: params}, nil
}

// Directory prompts until an existing directory is entered. Surrounding
// whitespace and quotes, as left by drag-and-drop into a terminal, are removed.
func (h *Handler) Directory() (string, error) {
	fmt.Fprint(h.out, "📁 Directory with images: ")

	for {
		input, err := h.readLine()
		if err != nil {
			return "", err
		}

		dir := CleanPath(input)
		if dir == "" {
			fmt.Fprint(h.out, "A directory is required: ")
			continue
		}

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			fmt.Fprintf(h.out, "❌ %s is not a directory. Try again: ", dir)
			continue
		}
		return dir, nil
	}
}

// Eps prompts for the neighborhood radius
func (h *Handler) Eps(def float64) (float64, error) {
	fmt.Fprintf(h.out, "📏 eps, the clustering radius [%g]: ", def)

	for {
		input, err := h.readLine()
		if err != nil {
			return 0, err
		}
		if input == "" {
			return def, nil
		}

		eps, err := strconv.ParseFloat(input, 64)
		if err != nil || eps < 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
			fmt.Fprint(h.out, "Invalid eps. Enter a number >= 0: ")
			continue
		}
		return eps, nil
	}
}

// MinSamples prompts for the minimum neighborhood size of a core point
func (h *Handler) MinSamples(def int) (int, error) {
	fmt.Fprintf(h.out, "🔢 min_samples, points needed for a cluster [%d]: ", def)

	for {
		input, err := h.readLine()
		if err != nil {
			return 0, err
		}
		if input == "" {
			return def, nil
		}

		n, err := strconv.Atoi(input)
		if err != nil || n < 1 {
			fmt.Fprint(h.out, "Invalid min_samples. Enter a whole number >= 1: ")
			continue
		}
		return n, nil
	}
}

func (h *Handler) readLine() (string, error) {
	if !h.scanner.Scan() {
		if err := h.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", ErrNoInput
	}
	return strings.TrimSpace(h.scanner.Text()), nil
}

// CleanPath strips whitespace and one layer of matching quotes from a path
func CleanPath(input string) string {
	s := strings.TrimSpace(input)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
