package usecase

var ExtractTarball = extractTarball
