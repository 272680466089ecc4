package lp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const objectiveRow = "OBJ"

// WriteMPS writes m in free MPS format. Names containing whitespace are rejected.
func WriteMPS(w io.Writer, m *Model) error {
	for _, v := range m.Vars {
		if strings.ContainsAny(v.Name, " \t\n") {
			return fmt.Errorf("mps: variable name %q contains whitespace", v.Name)
		}
	}
	for _, c := range m.Constraints {
		if strings.ContainsAny(c.Name, " \t\n") || c.Name == objectiveRow {
			return fmt.Errorf("mps: invalid row name %q", c.Name)
		}
	}

	bw := bufio.NewWriter(w)
	name := m.Name
	if name == "" || strings.ContainsAny(name, " \t") {
		name = "FBDAM"
	}
	fmt.Fprintf(bw, "NAME %s\n", name)
	if m.Maximize {
		fmt.Fprintf(bw, "OBJSENSE\n    MAX\n")
	}

	fmt.Fprintf(bw, "ROWS\n N  %s\n", objectiveRow)
	for _, c := range m.Constraints {
		code := "L"
		switch c.Sense {
		case GE:
			code = "G"
		case EQ:
			code = "E"
		}
		fmt.Fprintf(bw, " %s  %s\n", code, c.Name)
	}

	// column-major view of the rows
	cols := make([][]Term, len(m.Vars))
	for _, t := range m.Objective.Terms {
		cols[t.Var] = append(cols[t.Var], Term{Var: -1, Coef: t.Coef})
	}
	for r, c := range m.Constraints {
		for _, t := range c.Expr.Terms {
			cols[t.Var] = append(cols[t.Var], Term{Var: r, Coef: t.Coef})
		}
	}

	fmt.Fprintf(bw, "COLUMNS\n")
	inInt := false
	marker := 0
	for j, v := range m.Vars {
		isInt := v.Kind != Continuous
		if isInt != inInt {
			kind := "'INTORG'"
			if !isInt {
				kind = "'INTEND'"
			}
			fmt.Fprintf(bw, "    MARKER%d  'MARKER'  %s\n", marker, kind)
			marker++
			inInt = isInt
		}
		if len(cols[j]) == 0 {
			fmt.Fprintf(bw, "    %s  %s  0\n", v.Name, objectiveRow)
			continue
		}
		for _, e := range cols[j] {
			row := objectiveRow
			if e.Var >= 0 {
				row = m.Constraints[e.Var].Name
			}
			fmt.Fprintf(bw, "    %s  %s  %s\n", v.Name, row, formatFloat(e.Coef))
		}
	}
	if inInt {
		fmt.Fprintf(bw, "    MARKER%d  'MARKER'  'INTEND'\n", marker)
	}

	fmt.Fprintf(bw, "RHS\n")
	if m.Objective.Constant != 0 {
		fmt.Fprintf(bw, "    RHS  %s  %s\n", objectiveRow, formatFloat(-m.Objective.Constant))
	}
	for _, c := range m.Constraints {
		if c.RHS != 0 {
			fmt.Fprintf(bw, "    RHS  %s  %s\n", c.Name, formatFloat(c.RHS))
		}
	}

	fmt.Fprintf(bw, "BOUNDS\n")
	for _, v := range m.Vars {
		writeBounds(bw, v)
	}
	fmt.Fprintf(bw, "ENDATA\n")
	return bw.Flush()
}

func writeBounds(w io.Writer, v Var) {
	if v.Kind == Binary && v.Lower == 0 && v.Upper == 1 {
		fmt.Fprintf(w, " BV BND  %s\n", v.Name)
		return
	}
	if v.Lower == v.Upper {
		fmt.Fprintf(w, " FX BND  %s  %s\n", v.Name, formatFloat(v.Lower))
		return
	}
	switch {
	case math.IsInf(v.Lower, -1):
		fmt.Fprintf(w, " MI BND  %s\n", v.Name)
	case v.Lower != 0:
		fmt.Fprintf(w, " LO BND  %s  %s\n", v.Name, formatFloat(v.Lower))
	}
	switch {
	case !math.IsInf(v.Upper, 1):
		fmt.Fprintf(w, " UP BND  %s  %s\n", v.Name, formatFloat(v.Upper))
	case v.Kind != Continuous:
		// integer columns default to an upper bound of one in some readers
		fmt.Fprintf(w, " PL BND  %s\n", v.Name)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
