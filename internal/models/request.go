package models

// GenerationRequest is one submission to the generative model. It is built
// fresh for every batch and never stored.
type GenerationRequest struct {
	Files             []EncodedFilePayload
	Instruction       string
	SystemInstruction string
	Temperature       float32
}

// ContentPart is a single unit of the request body: either an inline file or text.
type ContentPart struct {
	Inline *EncodedFilePayload
	Text   string
}

// Parts returns the request body in wire order: every file, then the instruction.
func (r *GenerationRequest) Parts() []ContentPart {
	parts := make([]ContentPart, 0, len(r.Files)+1)
	for i := range r.Files {
		parts = append(parts, ContentPart{Inline: &r.Files[i]})
	}
	return append(parts, ContentPart{Text: r.Instruction})
}
