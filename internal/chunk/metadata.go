package chunk

// metadata.go flattens loader metadata into the fixed Metadata schema.
//
// Loaders produce heterogeneous, possibly nested maps (the PDF loader nests
// the info dictionary under "pdf.info" and the page locator under "loc").
// Normalize coerces whatever is present into the typed record the store
// expects and silently defaults everything that is absent.

// Normalize maps raw loader metadata into the fixed schema. It never fails:
// missing or mistyped fields degrade to zero values so a malformed source
// document cannot abort ingestion at this stage.
func Normalize(raw map[string]any) Metadata {
	meta := Metadata{
		Source:            asString(raw["source"]),
		FileName:          asString(raw["fileName"]),
		DocumentType:      asString(raw["documentType"]),
		ProcessingVersion: ProcessingVersion,
	}
	if meta.DocumentType == "" {
		meta.DocumentType = "pdf"
	}

	if pdf, ok := raw["pdf"].(map[string]any); ok {
		meta.TotalPages = asInt(pdf["totalPages"])
		if info, ok := pdf["info"].(map[string]any); ok {
			meta.Author = asString(info["Author"])
			meta.Title = asString(info["Title"])
			meta.Creator = asString(info["Creator"])
			meta.Producer = asString(info["Producer"])
		}
	}

	if loc, ok := raw["loc"].(map[string]any); ok {
		meta.PageNumber = asInt(loc["pageNumber"])
	}

	return meta
}

// asString coerces a metadata value to string, defaulting to "".
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt coerces a metadata value to int, defaulting to 0. JSON round-trips
// turn numbers into float64, so both forms are accepted.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
