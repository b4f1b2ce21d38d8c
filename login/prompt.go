package login

import "context"

// BiometricOptInMessage is shown when offering biometric enrollment.
const BiometricOptInMessage = "Enable Biometric Login? Would you like to enable login with Face ID or Fingerprint for faster access?"

// BiometricPromptMessage is passed to the gate when authenticating.
const BiometricPromptMessage = "Authenticate with Biometrics"

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, message string) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// BiometricGate verifies the device owner before stored credentials are
// released.
type BiometricGate interface {
	Authenticate(ctx context.Context, reason string) (bool, error)
}

// BiometricGateFunc adapts a function to BiometricGate.
type BiometricGateFunc func(ctx context.Context, reason string) (bool, error)

func (f BiometricGateFunc) Authenticate(ctx context.Context, reason string) (bool, error) {
	return f(ctx, reason)
}

type answerKey struct{}

// WithAnswer attaches a pre-made answer to ctx for ContextPrompter and
// ContextGate. Used when the question was asked by a remote UI.
func WithAnswer(ctx context.Context, yes bool) context.Context {
	return context.WithValue(ctx, answerKey{}, yes)
}

func answer(ctx context.Context) bool {
	yes, _ := ctx.Value(answerKey{}).(bool)
	return yes
}

// ContextPrompter answers with the value set by WithAnswer, or no.
type ContextPrompter struct{}

func (ContextPrompter) Confirm(ctx context.Context, _ string) (bool, error) {
	return answer(ctx), nil
}

// ContextGate passes when WithAnswer(ctx, true) was set.
type ContextGate struct{}

func (ContextGate) Authenticate(ctx context.Context, _ string) (bool, error) {
	return answer(ctx), nil
}
