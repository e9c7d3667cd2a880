package umux

const (
	minTerminalCols = 20
	minTerminalRows = 5
	maxTerminalCols = 500
	maxTerminalRows = 200

	defaultCols = 80
	defaultRows = 24
)

func validateTerminalSize(cols, rows int) error {
	if cols < minTerminalCols || cols > maxTerminalCols {
		return newError(KindInvalidInput, "invalid cols")
	}
	if rows < minTerminalRows || rows > maxTerminalRows {
		return newError(KindInvalidInput, "invalid rows")
	}
	return nil
}

func clampTerminalSize(cols, rows int) (int, int) {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}
	if cols < minTerminalCols {
		cols = minTerminalCols
	}
	if rows < minTerminalRows {
		rows = minTerminalRows
	}
	if cols > maxTerminalCols {
		cols = maxTerminalCols
	}
	if rows > maxTerminalRows {
		rows = maxTerminalRows
	}
	return cols, rows
}

