package pieces

// RegisterBuiltins registers the built-in http and crypto pieces.
func RegisterBuiltins(reg *Registry, httpCfg HTTPConfig) error {
	for _, p := range []Piece{
		NewHTTPPiece(httpCfg),
		NewCryptoPiece(),
	} {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
