// Package theme resolves typed, immutable style bundles for console session
// chrome.
//
// Integration example:
//
//	term := os.Getenv("TERM")
//	bundle, err := theme.Resolve(theme.VariantGreen, term)
//	if err != nil {
//		return err
//	}
//	profile := theme.DetectTermProfile(term)
//	fmt.Fprint(w, bundle.Prompt.Render("> ", profile))
package theme
