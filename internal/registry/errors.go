package registry

// The Engine facade performs no validation of its own: canonicalization,
// schema, tokenizer, and Token Memory errors already propagate from their
// originating packages with enough context to act on (spec §7). No
// registry-specific sentinel errors are defined here.
