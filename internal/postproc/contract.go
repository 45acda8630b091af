package postproc

import (
	"strings"

	"github.com/docuscan/docuscan/internal/entity"
)

// ContractProcessor derives party counts and a numeric contract value
// from an extracted contract.
type ContractProcessor struct{}

func (ContractProcessor) ProcessResult(data map[string]any) map[string]any {
	out := cloneResult(data)

	if parties, ok := out["parties"].([]any); ok {
		out["parties_count"] = len(parties)
		names := make([]string, 0, len(parties))
		for _, p := range parties {
			if s, ok := p.(string); ok {
				names = append(names, s)
			}
		}
		out["parties_list"] = strings.Join(names, ", ")
	}
	if v, ok := out["contract_value"]; ok {
		out["contract_value_numeric"] = parseAmount(v)
	}
	return out
}

func (ContractProcessor) DefaultSchema() entity.ExtractionSchema {
	return entity.ExtractionSchema{
		SystemInstruction: "You are a document processing assistant specializing in contract analysis. " +
			"Extract key contract information and return it in JSON format.",
		ExtractionInstruction: "Extract the following information from this contract:\n" +
			"- contract_title\n" +
			"- parties (array of party names)\n" +
			"- effective_date\n" +
			"- expiration_date\n" +
			"- contract_value\n" +
			"- key_terms (array of important terms)\n\n" +
			"Return the data as valid JSON.",
		RequiredFields: []string{"contract_title", "parties", "effective_date"},
	}
}
