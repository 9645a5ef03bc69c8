package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path).
		WithSuggestion("run `sitebuild init` to create a starter configuration")
}

func ConfigRequired(field string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *BuildError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason).
		WithSuggestion("check glob syntax and option values in the configuration file")
}

// Import resolution errors

func FragmentNotFound(ref, importer string) *BuildError {
	return New(CategoryImport, SeverityError, "fragment not found").
		WithContext("reference", ref).
		WithContext("importer", importer).
		WithSuggestion("create the missing file, or check the import path or short name").
		WithSuggestion("short names also match _name.html and _name.layout.html in parent directories")
}

func CircularImport(chain []string) *BuildError {
	return New(CategoryImport, SeverityError, "circular import detected").
		WithContext("chain", chain).
		WithSuggestion("break the cycle by removing one of the imports in the chain")
}

func MaxDepthExceeded(depth int, path string) *BuildError {
	return New(CategoryImport, SeverityWarning, "maximum import depth exceeded").
		WithContext("depth", depth).
		WithContext("path", path).
		WithSuggestion("flatten deeply nested layouts or raise max_import_depth")
}

func PathTraversal(ref, importer string) *BuildError {
	return New(CategorySecurity, SeverityError, "path escapes source root").
		WithContext("reference", ref).
		WithContext("importer", importer).
		WithSuggestion("import paths must stay inside the source directory")
}

// Build and filesystem errors

func BuildFailed(path string, cause error) *BuildError {
	return Wrap(cause, CategoryBuild, SeverityError, "page build failed").
		WithContext("path", path)
}

func FileSystemError(operation, path string, cause error) *BuildError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "filesystem operation failed").
		WithContext("operation", operation).
		WithContext("path", path)
}

func MarkdownError(path string, cause error) *BuildError {
	return Wrap(cause, CategoryMarkdown, SeverityError, "markdown rendering failed").
		WithContext("path", path)
}

func CacheError(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryCache, SeverityWarning, "build cache operation failed").
		WithContext("operation", operation).
		WithSuggestion("delete the cache directory to force a full rebuild")
}
