// Package metaerr collects the sentinel error values shared across the
// fitting engine's packages (spec error kinds, §7). Keeping them in one leaf
// package avoids import cycles between dataset, paramschema, block,
// coordinator and metamodel, each of which both returns and checks some of
// these values.
package metaerr

import "errors"

// ConfigurationError-family sentinels: missing/unknown parameter name,
// unknown distribution kind, unsupported model form. Use errors.Is against
// these, or fmt.Errorf("...: %w", ErrConfiguration) to add context.
var ErrConfiguration = errors.New("configuration error")

// ErrUnsupportedDistribution is returned when a parameter config names a
// distribution kind other than "Uniform".
var ErrUnsupportedDistribution = errors.New("unsupported distribution")

// ErrIncompatibleScriptResult is returned when a ResultSet added to a
// hierarchical data structure disagrees with previously added ones on
// simulator, realization count, or climate scenario.
var ErrIncompatibleScriptResult = errors.New("incompatible script result")

// ErrUnknownOutputType is returned when the requested output type is not
// present in any ResultSet.
var ErrUnknownOutputType = errors.New("unknown output type")

// ErrNegativeQuadraticForm signals numerical breakdown in a block's
// log-likelihood evaluation (the residual quadratic form came out
// negative). Fatal to the current MCMC step; the sampler converts it into
// a rejected proposal, never propagates it across the fit boundary.
var ErrNegativeQuadraticForm = errors.New("negative quadratic form")

// ErrNoCandidateConverged is returned by the coordinator when every
// candidate model form failed to converge.
var ErrNoCandidateConverged = errors.New("no candidate converged")

// ErrNotFitted is returned by prediction APIs called before a successful
// fit.
var ErrNotFitted = errors.New("meta-model has not been fitted")
