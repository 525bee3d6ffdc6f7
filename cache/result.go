package cache

// ValidationResult accumulates the outcome of a validation pass. It is
// mutated only through the add methods; callers treat a returned result as
// read-only.
type ValidationResult struct {
	IsValid            bool                   `json:"is_valid"`
	Errors             []string               `json:"errors"`
	Warnings           []string               `json:"warnings"`
	Recommendations    []string               `json:"recommendations"`
	ParameterConflicts map[string]string      `json:"parameter_conflicts"`
	AISpecificParams   []string               `json:"ai_specific_params"`
	GenericParams      []string               `json:"generic_params"`
	Context            map[string]interface{} `json:"context"`
}

// NewValidationResult creates an empty, valid result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:            true,
		ParameterConflicts: make(map[string]string),
		Context:            make(map[string]interface{}),
	}
}

// AddError records a validation error. Any error makes the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a warning; warnings never affect validity.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddRecommendation records a non-binding recommendation.
func (r *ValidationResult) AddRecommendation(msg string) {
	r.Recommendations = append(r.Recommendations, msg)
}

// AddConflict records a logical conflict between parameters. Conflicts
// flag inefficiency, not invalidity.
func (r *ValidationResult) AddConflict(param, detail string) {
	r.ParameterConflicts[param] = detail
}
