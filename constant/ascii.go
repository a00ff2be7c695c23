package constant

// AsciiArtLogo is the banner printed on top of the root command help.
const AsciiArtLogo = `
 __  ___ __ ___   ___  __| (_) __ _
 \ \/ / '_ ` + "`" + ` _ \ / _ \/ _` + "`" + ` | |/ _` + "`" + ` |
  >  <| | | | | |  __/ (_| | | (_| |
 /_/\_\_| |_| |_|\___|\__,_|_|\__,_|`
