package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrInputClosed is returned when the operator's input ends before an
// answer is given.
var ErrInputClosed = errors.New("operator input closed")

// Operator asks yes/no questions on a line-based terminal.
type Operator struct {
	in  *bufio.Reader
	out io.Writer
}

func NewOperator(in io.Reader, out io.Writer) *Operator {
	return &Operator{in: bufio.NewReader(in), out: out}
}

// Confirm prints question and blocks until a line is read. Only "y", in
// any case and surrounded by any whitespace, counts as yes.
func (o *Operator) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprint(o.out, question); err != nil {
		return false, errors.Wrap(err, "writing prompt")
	}
	line, err := o.in.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return false, ErrInputClosed
		}
	} else if err != nil {
		return false, errors.Wrap(err, "reading answer")
	}
	return strings.ToLower(strings.TrimSpace(line)) == "y", nil
}
