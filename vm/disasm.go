package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk: the constant
// pool, the prototype table, and every instruction with resolved operands.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions, %d constants, %d prototypes\n\n",
		len(c.Instructions), len(c.Constants), len(c.Prototypes)))

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, constantDisplay(k)))
		}
		sb.WriteString("\n")
	}

	// Prototypes
	if len(c.Prototypes) > 0 {
		sb.WriteString("; Prototypes:\n")
		for i, p := range c.Prototypes {
			sb.WriteString(fmt.Sprintf(";   [%3d] params=%d start=%04d", i, p.Params, p.CodeStart+1))
			for j, uv := range p.Upvalues {
				if j == 0 {
					sb.WriteString(" captures:")
				}
				sb.WriteString(fmt.Sprintf(" %s[%d]", uv.Source, uv.Index))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Instructions
	for i, in := range c.Instructions {
		sb.WriteString(fmt.Sprintf("%04d  %s", i, in))
		if note := c.operandNote(i, in); note != "" {
			sb.WriteString("  ; ")
			sb.WriteString(note)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// operandNote resolves an instruction's operand for the listing.
func (c *Chunk) operandNote(at int, in Instruction) string {
	switch in.Op.Info().Operand {
	case OperandConstant:
		if in.Index() < len(c.Constants) {
			return constantDisplay(c.Constants[in.Index()])
		}
		return "<bad constant>"
	case OperandOffset:
		return fmt.Sprintf("-> %04d", at+int(in.Offset()))
	case OperandProto:
		if in.Index() < len(c.Prototypes) {
			p := c.Prototypes[in.Index()]
			return fmt.Sprintf("fn(%d args) @%04d", p.Params, p.CodeStart+1)
		}
		return "<bad prototype>"
	}
	return ""
}

func constantDisplay(k Value) string {
	switch k.Kind() {
	case KindStr:
		s, _ := k.AsString()
		return truncateQuoted(s)
	case KindEmbedded:
		s, _ := k.AsString()
		return "embedded " + truncateQuoted(s)
	case KindInt, KindNumber:
		return fmt.Sprintf("%s %s", k.TypeName(), k)
	}
	return k.String()
}

func truncateQuoted(s string) string {
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return fmt.Sprintf("%q", s)
}
